// Command corpus is a minimal driver wiring the chunker, rasterizer,
// muxer, vector index, and retriever into the add/search/delete/stats
// operations — a demonstration of construction and wiring, not a general
// CLI (argument parsing and flags are an external collaborator per
// spec.md §1, so only the handful this driver needs are declared).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/qrvid/corpus/internal/corpus"
	"github.com/qrvid/corpus/internal/embedder"
	"github.com/qrvid/corpus/internal/embedder/openai"
	"github.com/qrvid/corpus/internal/platform/config"
	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/retriever"
	"github.com/qrvid/corpus/internal/vectorindex"
	"github.com/qrvid/corpus/internal/vectorindex/filestore"
	"github.com/qrvid/corpus/internal/vectorindex/memory"
	"github.com/qrvid/corpus/internal/videomux"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: corpus <add|search|delete|stats> [flags]")
		os.Exit(1)
	}
	sub := os.Args[1]
	fs := flag.NewFlagSet(sub, flag.ExitOnError)

	videoDir := fs.String("video-dir", "./corpus-data", "directory holding one MP4 per document")
	docID := fs.String("doc", "", "document id")
	textPath := fs.String("text", "", "path to the source text file (add)")
	query := fs.String("query", "", "search query text (search)")
	topK := fs.Int("k", 5, "top-k results (search)")
	indexKind := fs.String("index", "memory", "vector index backend: memory|file")
	indexPath := fs.String("index-path", "./corpus-data/index.json", "file-backed index path (index=file)")
	_ = fs.Parse(os.Args[2:])

	log, err := logger.New(envOr("CORPUS_LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.ResolveFromEnv()
	if err != nil {
		log.Fatal("invalid configuration", "error", err.Error())
	}

	emb, err := buildEmbedder(log)
	if err != nil {
		log.Fatal("build embedder", "error", err.Error())
	}

	index, err := buildIndex(*indexKind, *indexPath)
	if err != nil {
		log.Fatal("build vector index", "error", err.Error())
	}

	c, err := corpus.New(log, cfg, emb, index, *videoDir)
	if err != nil {
		log.Fatal("build corpus", "error", err.Error())
	}

	ctx := context.Background()
	switch sub {
	case "add":
		runAdd(ctx, c, *docID, *textPath)
	case "search":
		runSearch(ctx, log, cfg, emb, index, c, *docID, *query, *topK)
	case "delete":
		runDelete(ctx, c, *docID)
	case "stats":
		runStats(ctx, c, *docID)
	default:
		fmt.Printf("unknown subcommand %q\n", sub)
		os.Exit(1)
	}
}

func runAdd(ctx context.Context, c *corpus.Corpus, docID, textPath string) {
	if docID == "" || textPath == "" {
		fmt.Println("add requires -doc and -text")
		os.Exit(1)
	}
	raw, err := os.ReadFile(textPath)
	if err != nil {
		fmt.Printf("read text file: %v\n", err)
		os.Exit(1)
	}
	stats, err := c.AddDocument(ctx, docID, string(raw))
	if err != nil {
		fmt.Printf("add document: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("added %s: %d chunks\n", docID, stats.TotalChunks)
}

func runSearch(ctx context.Context, log *logger.Logger, cfg config.Config, emb embedder.Embedder, index vectorindex.VectorDatabase, c *corpus.Corpus, docID, query string, topK int) {
	if docID == "" || query == "" {
		fmt.Println("search requires -doc and -query")
		os.Exit(1)
	}
	videoPath := c.VideoPath(docID)
	fps := cfg.VideoFPS
	if sc, err := corpus.ReadSidecar(videoPath); err == nil {
		fps = sc.VideoFPS
	}

	mux := videomux.New(log, cfg)
	r := retriever.New(log, emb, index, mux, fps, nil)

	results, err := r.Search(ctx, query, videoPath, topK)
	if err != nil {
		fmt.Printf("search: %v\n", err)
		os.Exit(1)
	}
	for _, res := range results {
		fmt.Printf("frame=%d similarity=%.4f %q\n", res.FrameNumber, res.Similarity, res.ChunkText)
	}
}

func runDelete(ctx context.Context, c *corpus.Corpus, docID string) {
	if docID == "" {
		fmt.Println("delete requires -doc")
		os.Exit(1)
	}
	if err := c.DeleteDocument(ctx, docID); err != nil {
		fmt.Printf("delete document: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %s\n", docID)
}

func runStats(ctx context.Context, c *corpus.Corpus, docID string) {
	if docID == "" {
		fmt.Println("stats requires -doc")
		os.Exit(1)
	}
	stats, err := c.Stats(ctx, docID)
	if err != nil {
		fmt.Printf("stats: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("chunks=%d frames=%d video_bytes=%d original_bytes=%d ratio=%.4f duration=%.2fs\n",
		stats.TotalChunks, stats.TotalFrames, stats.VideoSizeBytes, stats.OriginalSizeBytes, stats.CompressionRatio, stats.DurationSeconds)
}

// buildEmbedder wires a real OpenAI embedder when OPENAI_API_KEY is set,
// falling back to the deterministic mock otherwise — the same
// network-optional posture the teacher's dev-mode config takes.
func buildEmbedder(log *logger.Logger) (embedder.Embedder, error) {
	openaiCfg := openai.ConfigFromEnv()
	if strings.TrimSpace(openaiCfg.APIKey) == "" {
		return embedder.NewMock(openaiCfg.Dimension), nil
	}
	return openai.New(log, openaiCfg)
}

func buildIndex(kind, path string) (vectorindex.VectorDatabase, error) {
	switch strings.ToLower(kind) {
	case "memory":
		return memory.New(), nil
	case "file":
		return filestore.Open(path)
	default:
		return nil, fmt.Errorf("unknown index backend %q", kind)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
