package ids

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7_Version(t *testing.T) {
	id := UUIDv7{}.Generate()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Len(t, id, 36)
}

func TestUUIDv7_Unique(t *testing.T) {
	gen := UUIDv7{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.Generate()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestFixed_ReturnsInOrderThenPanics(t *testing.T) {
	gen := NewFixed("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestSequential(t *testing.T) {
	gen := NewSequential("rev")
	assert.Equal(t, "rev-1", gen.Generate())
	assert.Equal(t, "rev-2", gen.Generate())
}
