// Package corpus is the Orchestrator: it ties the chunker (C1), QR
// rasterizer (C2), video muxer (C3), and vector index (C4) together into
// the add/delete/stats operations spec.md §4.6 describes, enforcing the
// mux-before-index ordering and scratch-directory lifecycle spec.md §5
// requires. Retrieval (C5) lives in internal/retriever; this package only
// builds artifacts, it doesn't query them.
package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/qrvid/corpus/internal/chunker"
	"github.com/qrvid/corpus/internal/embedder"
	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/ctxutil"
	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/qr"
	"github.com/qrvid/corpus/internal/vectorindex"
	"github.com/qrvid/corpus/internal/videomux"
)

// Stats is spec.md §3's on-demand artifact report.
type Stats struct {
	TotalChunks       int
	TotalFrames       int
	VideoSizeBytes    int64
	OriginalSizeBytes int64
	CompressionRatio  float64
	DurationSeconds   float64
}

// Corpus wires C1-C4 into add/delete/stats for documents stored under
// videoDir, one MP4 (plus a .meta.json and .txt side-car) per document id.
type Corpus struct {
	log      *logger.Logger
	cfg      config.Config
	chunker  *chunker.Chunker
	raster   *qr.Rasterizer
	muxer    *videomux.Muxer
	embedder embedder.Embedder
	index    vectorindex.VectorDatabase
	videoDir string
}

// New validates cfg and wires the five components. The muxer's binaries
// are not checked here — AddDocument/Stats surface EncoderNotFound lazily,
// the same way videomux.Muxer does, since a reader-only Corpus (e.g. one
// only ever used for Stats against pre-built artifacts) shouldn't need
// ffmpeg on PATH to construct.
func New(log *logger.Logger, cfg config.Config, emb embedder.Embedder, index vectorindex.VectorDatabase, videoDir string) (*Corpus, error) {
	if log == nil {
		return nil, corerr.Config("corpus", "logger required")
	}
	if emb == nil {
		return nil, corerr.Config("corpus", "embedder required")
	}
	if index == nil {
		return nil, corerr.Config("corpus", "index required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := chunker.New(chunker.Config{ChunkSize: cfg.ChunkSize, ChunkOverlap: cfg.ChunkOverlap})
	if err != nil {
		return nil, err
	}
	if videoDir == "" {
		videoDir = "."
	}
	return &Corpus{
		log:      log.With("component", "corpus"),
		cfg:      cfg,
		chunker:  c,
		raster:   qr.NewRasterizer(cfg),
		muxer:    videomux.New(log, cfg),
		embedder: emb,
		index:    index,
		videoDir: videoDir,
	}, nil
}

// VideoPath returns the MP4 path Corpus uses for documentID.
func (c *Corpus) VideoPath(documentID string) string {
	return filepath.Join(c.videoDir, documentID+".mp4")
}

func textSidecarPath(videoPath string) string {
	return videoPath + ".txt"
}

type encodedChunk struct {
	bitmap []byte
	vector []float32
}

// AddDocument runs the full encode pipeline for one document: chunk,
// fan out rasterize+embed per chunk (bounded concurrency), mux the
// bitmaps into a fresh MP4, then upsert the resulting entries — in that
// order, so MUXED always precedes INDEXED (spec.md §4.6). A failure
// before the upsert leaves the index untouched, and a failed mux
// publishes no partial MP4; the scratch directory cleanup is the muxer's
// responsibility. The side-car files are written after the upsert, so a
// failure writing them leaves the new index entries and MP4 in place.
func (c *Corpus) AddDocument(ctx context.Context, documentID, text string) (Stats, error) {
	ctx = ctxutil.Default(ctx)
	if documentID == "" {
		return Stats{}, corerr.Config("corpus", "document_id must not be empty")
	}

	chunks := c.chunker.Chunk(text)
	videoPath := c.VideoPath(documentID)

	encoded, err := c.encodeChunks(ctx, chunks)
	if err != nil {
		return Stats{}, err
	}

	bitmaps := make([][]byte, len(chunks))
	for i, e := range encoded {
		bitmaps[i] = e.bitmap
	}
	if err := c.muxer.MuxFrames(ctx, bitmaps, videoPath); err != nil {
		return Stats{}, err
	}

	entries := make([]vectorindex.IndexEntry, len(chunks))
	for i, ch := range chunks {
		entries[i] = vectorindex.IndexEntry{
			ChunkText:   ch.Text,
			Embedding:   encoded[i].vector,
			FrameNumber: ch.Index,
			DocumentID:  documentID,
		}
	}
	if len(entries) > 0 {
		if err := c.index.Upsert(ctx, entries); err != nil {
			return Stats{}, corerr.IndexBackend("corpus", "upsert document entries", err)
		}
	}

	if err := writeSidecar(videoPath, Sidecar{
		DocumentID:             documentID,
		VideoFPS:               c.cfg.VideoFPS,
		VideoWidth:             c.cfg.VideoWidth,
		VideoHeight:            c.cfg.VideoHeight,
		QRErrorCorrectionLevel: string(c.cfg.ECL),
	}); err != nil {
		return Stats{}, err
	}
	if err := os.WriteFile(textSidecarPath(videoPath), []byte(text), 0o644); err != nil {
		return Stats{}, corerr.IO("corpus", "write text sidecar", err)
	}

	return Stats{
		TotalChunks:       len(chunks),
		TotalFrames:       len(chunks),
		OriginalSizeBytes: int64(len(text)),
	}, nil
}

// encodeChunks rasterizes and embeds every chunk, in parallel bounded by
// cfg.MaxEncodeConcurrency (0 meaning number of cores), reassembling
// results by chunk index before muxing (spec.md §9's ordering
// requirement). The first failure cancels the remaining work via
// errgroup's shared context — a PayloadTooLarge or EmbedderError aborts
// the whole encode before any MP4 is written.
func (c *Corpus) encodeChunks(ctx context.Context, chunks []chunker.Chunk) ([]encodedChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	maxConc := c.cfg.MaxEncodeConcurrency
	if maxConc <= 0 {
		maxConc = runtime.NumCPU()
	}

	out := make([]encodedChunk, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConc)

	for _, ch := range chunks {
		ch := ch
		g.Go(func() error {
			bitmap, err := c.raster.Rasterize(ch.Text)
			if err != nil {
				return err
			}
			vec, err := c.embedder.Embed(gctx, ch.Text)
			if err != nil {
				return corerr.Embedder("corpus", fmt.Sprintf("embed chunk %d", ch.Index), err)
			}
			out[ch.Index] = encodedChunk{bitmap: bitmap, vector: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument removes documentID's entries from the index and deletes
// its MP4 and side-car files. Symmetric with AddDocument, per spec.md §3's
// lifecycle note ("destruction is symmetric").
func (c *Corpus) DeleteDocument(ctx context.Context, documentID string) error {
	ctx = ctxutil.Default(ctx)
	if err := c.index.Delete(ctx, documentID); err != nil {
		return corerr.IndexBackend("corpus", "delete document entries", err)
	}

	videoPath := c.VideoPath(documentID)
	if err := os.Remove(videoPath); err != nil && !os.IsNotExist(err) {
		return corerr.IO("corpus", "remove video file", err)
	}
	if err := removeSidecar(videoPath); err != nil {
		return err
	}
	if err := os.Remove(textSidecarPath(videoPath)); err != nil && !os.IsNotExist(err) {
		return corerr.IO("corpus", "remove text sidecar", err)
	}
	return nil
}

// Stats probes documentID's MP4 with ffprobe and re-chunks its preserved
// source text (read back from the .txt side-car AddDocument wrote) to
// report the metrics spec.md §3 names.
func (c *Corpus) Stats(ctx context.Context, documentID string) (Stats, error) {
	ctx = ctxutil.Default(ctx)
	videoPath := c.VideoPath(documentID)

	probe, err := c.muxer.Probe(ctx, videoPath)
	if err != nil {
		return Stats{}, err
	}

	raw, err := os.ReadFile(textSidecarPath(videoPath))
	if err != nil {
		return Stats{}, corerr.IO("corpus", "read text sidecar", err)
	}
	text := string(raw)
	chunks := c.chunker.Chunk(text)

	originalSize := int64(len(raw))
	ratio := 0.0
	if originalSize > 0 {
		ratio = float64(probe.VideoSizeBytes) / float64(originalSize)
	}

	return Stats{
		TotalChunks:       len(chunks),
		TotalFrames:       probe.TotalFrames,
		VideoSizeBytes:    probe.VideoSizeBytes,
		OriginalSizeBytes: originalSize,
		CompressionRatio:  ratio,
		DurationSeconds:   probe.DurationSeconds,
	}, nil
}
