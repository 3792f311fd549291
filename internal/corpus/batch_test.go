package corpus

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrvid/corpus/internal/embedder"
	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/vectorindex/memory"
)

func TestAddDocumentsBatch_Sequential_OneFailureDoesNotAbortOthers(t *testing.T) {
	requireFFmpeg(t)

	cfg := config.Default()
	cfg.ChunkSize = 5000
	cfg.ECL = config.ECLHigh

	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), t.TempDir())
	require.NoError(t, err)

	huge := make([]byte, 4000)
	for i := range huge {
		huge[i] = byte('a' + i%26)
	}

	docs := []Document{
		{ID: "doc-ok-1", Text: "small document one"},
		{ID: "doc-bad", Text: string(huge)},
		{ID: "doc-ok-2", Text: "small document two"},
	}

	results := c.AddDocumentsBatch(context.Background(), docs)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
}

func TestAddDocumentsBatchParallel_EncodesEveryDocumentWithoutScratchCollision(t *testing.T) {
	requireFFmpeg(t)

	cfg := config.Default()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), t.TempDir())
	require.NoError(t, err)

	docs := make([]Document, 6)
	for i := range docs {
		docs[i] = Document{ID: fmt.Sprintf("doc-%d", i), Text: fmt.Sprintf("document body number %d", i)}
	}

	results := c.AddDocumentsBatchParallel(context.Background(), docs, 3)
	require.Len(t, results, len(docs))
	for _, r := range results {
		assert.NoError(t, r.Err, "document %s", r.DocumentID)
		require.FileExists(t, c.VideoPath(r.DocumentID))
	}
}
