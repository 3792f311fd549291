package corpus

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrvid/corpus/internal/chunker"
	"github.com/qrvid/corpus/internal/embedder"
	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/vectorindex/memory"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not on PATH")
	}
}

func TestNew_RejectsMissingDeps(t *testing.T) {
	cfg := config.Default()
	_, err := New(nil, cfg, embedder.NewMock(8), memory.New(), t.TempDir())
	require.Error(t, err)

	_, err = New(testLogger(t), cfg, nil, memory.New(), t.TempDir())
	require.Error(t, err)

	_, err = New(testLogger(t), cfg, embedder.NewMock(8), nil, t.TempDir())
	require.Error(t, err)
}

func TestAddDocument_PayloadTooLarge_AbortsBeforeMux(t *testing.T) {
	cfg := config.Default()
	cfg.ChunkSize = 5000
	cfg.ECL = config.ECLHigh

	dir := t.TempDir()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), dir)
	require.NoError(t, err)

	huge := make([]byte, 4000)
	for i := range huge {
		huge[i] = byte('a' + i%26)
	}

	_, err = c.AddDocument(context.Background(), "doc-1", string(huge))
	require.Error(t, err)
	assert.True(t, corerr.Is(err, corerr.KindPayloadTooLarge))

	_, statErr := filepath.Glob(filepath.Join(dir, "*.mp4"))
	require.NoError(t, statErr)
	matches, _ := filepath.Glob(filepath.Join(dir, "*.mp4"))
	assert.Empty(t, matches, "no MP4 should be published when the encode aborts before mux")
}

func TestAddDocument_RejectsEmptyDocumentID(t *testing.T) {
	cfg := config.Default()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), t.TempDir())
	require.NoError(t, err)

	_, err = c.AddDocument(context.Background(), "", "hello")
	require.Error(t, err)
	assert.True(t, corerr.Is(err, corerr.KindConfig))
}

func TestEncodeChunks_OrderedByChunkIndexRegardlessOfCompletionOrder(t *testing.T) {
	cfg := config.Default()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), t.TempDir())
	require.NoError(t, err)

	chunks := []chunker.Chunk{
		{Text: "alpha", Index: 0},
		{Text: "beta", Index: 1},
		{Text: "gamma", Index: 2},
	}

	encoded, err := c.encodeChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, encoded, 3)

	for i, ch := range chunks {
		vec, embedErr := c.embedder.Embed(context.Background(), ch.Text)
		require.NoError(t, embedErr)
		assert.Equal(t, vec, encoded[i].vector)
		assert.NotEmpty(t, encoded[i].bitmap)
	}
}

func TestEncodeChunks_EmptyInputYieldsNoWork(t *testing.T) {
	cfg := config.Default()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), t.TempDir())
	require.NoError(t, err)

	encoded, err := c.encodeChunks(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, encoded)
}

func TestSidecar_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	videoPath := filepath.Join(dir, "doc-1.mp4")

	sc := Sidecar{
		DocumentID:             "doc-1",
		VideoFPS:                1,
		VideoWidth:              256,
		VideoHeight:             256,
		QRErrorCorrectionLevel:  "M",
	}
	require.NoError(t, writeSidecar(videoPath, sc))

	got, err := ReadSidecar(videoPath)
	require.NoError(t, err)
	assert.Equal(t, sc, got)

	require.NoError(t, removeSidecar(videoPath))
	_, err = ReadSidecar(videoPath)
	require.Error(t, err)
}

func TestDeleteDocument_RemovesIndexEntriesAndFiles(t *testing.T) {
	requireFFmpeg(t)

	cfg := config.Default()
	dir := t.TempDir()
	idx := memory.New()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), idx, dir)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.AddDocument(ctx, "doc-1", "a short document")
	require.NoError(t, err)

	videoPath := c.VideoPath("doc-1")
	require.FileExists(t, videoPath)
	require.FileExists(t, sidecarPath(videoPath))
	require.FileExists(t, textSidecarPath(videoPath))

	require.NoError(t, c.DeleteDocument(ctx, "doc-1"))
	assert.NoFileExists(t, videoPath)
	assert.NoFileExists(t, sidecarPath(videoPath))
	assert.NoFileExists(t, textSidecarPath(videoPath))

	vec, err := embedder.NewMock(8).Embed(ctx, "a short document")
	require.NoError(t, err)
	hits, err := idx.Search(ctx, vec, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddDocument_EmptyText_ProducesZeroFramesAndValidArtifact(t *testing.T) {
	requireFFmpeg(t)

	cfg := config.Default()
	dir := t.TempDir()
	idx := memory.New()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), idx, dir)
	require.NoError(t, err)

	ctx := context.Background()
	stats, err := c.AddDocument(ctx, "empty-doc", "")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)

	require.FileExists(t, c.VideoPath("empty-doc"))

	hits, err := idx.Search(ctx, []float32{0, 0, 0, 0, 0, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStats_ReportsChunksAndCompressionRatio(t *testing.T) {
	requireFFmpeg(t)

	cfg := config.Default()
	dir := t.TempDir()
	c, err := New(testLogger(t), cfg, embedder.NewMock(8), memory.New(), dir)
	require.NoError(t, err)

	ctx := context.Background()
	text := "the quick brown fox jumps over the lazy dog, repeated a few times for good measure"
	_, err = c.AddDocument(ctx, "doc-stats", text)
	require.NoError(t, err)

	stats, err := c.Stats(ctx, "doc-stats")
	require.NoError(t, err)
	assert.Equal(t, int64(len(text)), stats.OriginalSizeBytes)
	assert.Greater(t, stats.TotalChunks, 0)
	assert.Greater(t, stats.VideoSizeBytes, int64(0))
}
