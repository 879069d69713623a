package weaviate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/chunkstore"
	"docquery/internal/document"
	"docquery/internal/testutils"
)

func TestIndexIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	suite := testutils.NewIntegrationSuite(t)
	suite.Setup()
	defer suite.Teardown()

	ctx := context.Background()
	index := NewIndex(suite.Weaviate)
	require.NoError(t, index.EnsureSchema(ctx))

	content := []byte("integration file body")
	hash := document.Fingerprint("integ.txt", content)

	entries := []chunkstore.Entry{
		{
			ID:      document.ChunkID(hash, 0),
			Content: "first chunk of the document",
			Vector:  []float32{1, 0, 0},
			Metadata: document.Metadata{
				Source: "integ.txt", ChunkIndex: 0, TotalChunks: 2, ChunkSize: 27, FileHash: hash,
			},
		},
		{
			ID:      document.ChunkID(hash, 1),
			Content: "second chunk of the document",
			Vector:  []float32{0, 1, 0},
			Metadata: document.Metadata{
				Source: "integ.txt", ChunkIndex: 1, TotalChunks: 2, ChunkSize: 28, FileHash: hash,
			},
		},
	}

	t.Run("Upsert And Count", func(t *testing.T) {
		require.NoError(t, index.Upsert(ctx, entries))

		count, err := index.CountAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("Upsert Same Entries Is Idempotent", func(t *testing.T) {
		require.NoError(t, index.Upsert(ctx, entries))

		count, err := index.CountAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("ExistsByFileHash", func(t *testing.T) {
		exists, err := index.ExistsByFileHash(ctx, hash)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = index.ExistsByFileHash(ctx, "other.txt_0000000000000000")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Nearest Ranks By Similarity", func(t *testing.T) {
		results, err := index.Nearest(ctx, []float32{0.9, 0.1, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "first chunk of the document", results[0].Content)
		assert.Equal(t, 0, results[0].Metadata.ChunkIndex)
	})

	t.Run("AllMetadata", func(t *testing.T) {
		metas, err := index.AllMetadata(ctx)
		require.NoError(t, err)
		require.Len(t, metas, 2)
		for _, m := range metas {
			assert.Equal(t, "integ.txt", m.Source)
			assert.Equal(t, hash, m.FileHash)
		}
		// chunkId sort keeps the scan order stable across calls.
		assert.Equal(t, 0, metas[0].ChunkIndex)
		assert.Equal(t, 1, metas[1].ChunkIndex)
	})

	t.Run("Drop Empties Index", func(t *testing.T) {
		require.NoError(t, index.Drop(ctx))

		count, err := index.CountAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, count)

		exists, err := index.ExistsByFileHash(ctx, hash)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}
