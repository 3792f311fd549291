package corpus

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/qrvid/corpus/internal/platform/ctxutil"
)

// Document is one unit of work for the batch entry points.
type Document struct {
	ID   string
	Text string
}

// BatchResult pairs a Document with the outcome of encoding it.
type BatchResult struct {
	DocumentID string
	Stats      Stats
	Err        error
}

// AddDocumentsBatch processes docs sequentially, one scratch directory
// at a time, per spec.md §5's default contract ("add_documents_batch
// processes documents sequentially"). A failing document does not abort
// the remaining ones; each result is reported independently.
func (c *Corpus) AddDocumentsBatch(ctx context.Context, docs []Document) []BatchResult {
	ctx = ctxutil.Default(ctx)
	results := make([]BatchResult, len(docs))
	for i, d := range docs {
		stats, err := c.AddDocument(ctx, d.ID, d.Text)
		results[i] = BatchResult{DocumentID: d.ID, Stats: stats, Err: err}
		if ctx.Err() != nil {
			for j := i + 1; j < len(docs); j++ {
				results[j] = BatchResult{DocumentID: docs[j].ID, Err: fmt.Errorf("corpus: batch cancelled: %w", ctx.Err())}
			}
			break
		}
	}
	return results
}

// AddDocumentsBatchParallel lifts AddDocumentsBatch to bounded
// parallelism across documents, as spec.md §5 permits ("implementations
// may lift this to bounded parallelism, but must document it" —
// SPEC_FULL.md §5 decision 2). Each document still gets its own
// uniquely-named scratch directory (videomux.Muxer disambiguates by
// UUID), so concurrent encodes never collide on disk.
func (c *Corpus) AddDocumentsBatchParallel(ctx context.Context, docs []Document, maxConcurrency int) []BatchResult {
	ctx = ctxutil.Default(ctx)
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]BatchResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)

	for i, d := range docs {
		i, d := i, d
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = BatchResult{DocumentID: d.ID, Err: gctx.Err()}
				return nil
			}
			stats, err := c.AddDocument(gctx, d.ID, d.Text)
			results[i] = BatchResult{DocumentID: d.ID, Stats: stats, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
