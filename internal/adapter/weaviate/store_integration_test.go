package weaviate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragdocs/internal/adapter/weaviate"
	"ragdocs/internal/apperr"
	"ragdocs/internal/testutils"
	"ragdocs/internal/vector"
)

func TestWeaviateStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t, testutils.Weaviate)
	s.Setup()
	defer s.Teardown()

	store := weaviate.NewStore(s.Weaviate, "Documentation")
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, 3))
	require.NoError(t, store.EnsureCollection(ctx, 3), "EnsureCollection must be idempotent")

	now := time.Now().UTC()
	pageA := []vector.Chunk{
		{URL: "https://ex.com/a", Title: "Page A", Text: "Postgres is a database", ChunkIndex: 0, Vector: []float32{1, 0, 0}, CreatedAt: now},
		{URL: "https://ex.com/a", Title: "Page A", Text: "It speaks SQL", ChunkIndex: 1, Vector: []float32{0.9, 0.1, 0}, CreatedAt: now},
	}
	pageB := []vector.Chunk{
		{URL: "https://ex.com/b", Title: "Page B", Text: "Weaviate stores vectors", ChunkIndex: 0, Vector: []float32{0, 1, 0}, CreatedAt: now},
	}
	require.NoError(t, store.Upsert(ctx, pageA))
	require.NoError(t, store.Upsert(ctx, pageB))

	// Re-upserting the same ids replaces instead of duplicating.
	require.NoError(t, store.Upsert(ctx, pageA))
	count, err := store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	matches, err := store.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "Postgres is a database", matches[0].Chunk.Text)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)

	matches, err = store.Search(ctx, []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []vector.Source{
		{URL: "https://ex.com/a", Title: "Page A"},
		{URL: "https://ex.com/b", Title: "Page B"},
	}, sources)

	require.NoError(t, store.DeleteByURL(ctx, []string{"https://ex.com/a"}))
	count, err = store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = store.EnsureCollection(ctx, 768)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
