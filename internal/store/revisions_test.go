package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sitecms/internal/content"
)

func TestRevisions_CaptureReplacedValue(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	v1 := content.Object{"phone": content.String("555-0100")}
	v2 := content.Object{"phone": content.String("555-0199")}

	_, err := s.UpsertField(ctx, "contact", "default", v1, true, "alice")
	require.NoError(t, err)
	res, err := s.UpsertField(ctx, "contact", "default", v2, true, "bob")
	require.NoError(t, err)

	require.NotNil(t, res.Revision)
	assert.Equal(t, v1, res.Revision.Content)
	assert.Equal(t, "bob", res.Revision.CreatedBy)

	revs, err := s.ListRevisions(ctx, res.Item.ID, 0)
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.True(t, content.Equal(v1, revs[0].Content))
	for _, r := range revs {
		assert.False(t, content.Equal(v2, r.Content), "revision log must not contain the live value")
	}

	hash, err := content.Hash(v1)
	require.NoError(t, err)
	assert.Equal(t, hash, revs[0].ContentHash)
}

func TestRevisions_NewestFirstAndBounded(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	var id string
	for i := 0; i < 25; i++ {
		res, err := s.UpsertField(ctx, "contact", "phone", content.String(fmt.Sprintf("v%d", i)), true, "alice")
		require.NoError(t, err)
		id = res.Item.ID
		clk.Advance(time.Second)
	}

	revs, err := s.ListRevisions(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, revs, DefaultRevisionLimit)
	assert.Equal(t, content.String("v23"), revs[0].Content)
	assert.Equal(t, int64(24), revs[0].Seq)
	for i := 1; i < len(revs); i++ {
		assert.Greater(t, revs[i-1].Seq, revs[i].Seq)
	}

	revs, err = s.ListRevisions(ctx, id, 3)
	require.NoError(t, err)
	assert.Len(t, revs, 3)
}

func TestRevisions_SameInstantStillOrdered(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	var id string
	for _, v := range []string{"a", "b", "c"} {
		res, err := s.UpsertField(ctx, "contact", "phone", content.String(v), true, "alice")
		require.NoError(t, err)
		id = res.Item.ID
	}

	revs, err := s.ListRevisions(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, content.String("b"), revs[0].Content)
	assert.Equal(t, content.String("a"), revs[1].Content)
}

func TestGetRevision(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertField(ctx, "contact", "phone", content.String("a"), true, "alice")
	require.NoError(t, err)
	res, err := s.UpsertField(ctx, "contact", "phone", content.String("b"), true, "alice")
	require.NoError(t, err)

	rev, err := s.GetRevision(ctx, res.Revision.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Item.ID, rev.ContentID)
	assert.Equal(t, content.String("a"), rev.Content)
	assert.Equal(t, testEpoch, rev.CreatedAt)

	_, err = s.GetRevision(ctx, "missing")
	assert.True(t, IsNotFound(err))
}
