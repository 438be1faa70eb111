// Package ids generates identifiers for content items, revisions, media and
// autosave sessions.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator interface {
	Generate() string
}

// UUIDv7 generates time-sortable UUIDv7 strings. Rows inserted later sort
// after rows inserted earlier, which keeps listings stable without an
// extra sequence column.
//
// Safe for concurrent use.
type UUIDv7 struct{}

// Generate returns a hyphenated UUIDv7. Panics if the system random
// source fails.
func (UUIDv7) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identifiers, for tests that compare exact
// output.
//
// Safe for concurrent use.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order.
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// Generate returns the next predetermined id. Panics once the list is
// exhausted so a test that creates more rows than expected fails loudly.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("ids.Fixed: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Sequential generates "<prefix>-1", "<prefix>-2", ... for tests that need
// stable but unbounded ids.
type Sequential struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequential creates a Sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// Generate returns the next id.
func (g *Sequential) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
