// Package retriever implements the search path: embed a query, rank
// candidate frames by cosine similarity against the index, then
// extract each candidate frame from its source video and decode its QR
// code to confirm it. The chunk text returned is the one stored in the
// index; the decoded frame text only checks it and fills the cache.
package retriever

import (
	"context"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/qrvid/corpus/internal/embedder"
	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/qr"
	"github.com/qrvid/corpus/internal/vectorindex"
)

const defaultCacheCapacity = 50

// Cache stores decoded chunk text keyed by (video path, frame number),
// sparing a repeat extraction+decode round trip for a frame that's been
// retrieved before. Implementations must be safe for concurrent use.
type Cache interface {
	Get(videoPath string, frameNumber int) (string, bool)
	Set(videoPath string, frameNumber int, text string)
	Clear()
	Len() int
}

// FrameExtractor is the subset of *videomux.Muxer the retriever needs;
// an interface here lets tests substitute a fake extractor instead of
// shelling out to ffmpeg.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, frameNumber int, fps float64) ([]byte, error)
}

// SearchResult is one ranked, text-recovered hit.
type SearchResult struct {
	ChunkText   string
	FrameNumber int
	DocumentID  string
	VideoPath   string
	Similarity  float64
}

type Retriever struct {
	log      *logger.Logger
	embedder embedder.Embedder
	index    vectorindex.VectorDatabase
	muxer    FrameExtractor
	cache    Cache
	fps      float64
}

func New(log *logger.Logger, emb embedder.Embedder, index vectorindex.VectorDatabase, muxer FrameExtractor, fps float64, cache Cache) *Retriever {
	if cache == nil {
		cache = NewLRUCache(defaultCacheCapacity)
	}
	if fps <= 0 {
		fps = 1
	}
	return &Retriever{
		log:      log.With("service", "retriever"),
		embedder: emb,
		index:    index,
		muxer:    muxer,
		cache:    cache,
		fps:      fps,
	}
}

// Search embeds query, ranks the top-k entries in the index, and for
// each hit decodes the corresponding video frame as a consistency
// check against the index's stored chunk_text — the stored value is
// authoritative (spec.md §4.5 step 4), the decode only confirms it and
// warms the cache. A frame that fails to extract or decode is dropped
// from the result, except when the extractor reports a missing video
// file (corerr.KindVideoNotFound): that aborts the whole search with no
// results. The check happens at the first hit whose frame is extracted,
// after the query has been embedded and the index searched; hits served
// from the cache do not touch the video file.
func (r *Retriever) Search(ctx context.Context, query string, videoPath string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return []SearchResult{}, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, corerr.Embedder("retriever", "embed query", err)
	}
	hits, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, corerr.IndexBackend("retriever", "search index", err)
	}

	out := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		if err := r.verifyFrame(ctx, videoPath, hit); err != nil {
			if corerr.Is(err, corerr.KindVideoNotFound) {
				return nil, err
			}
			r.log.Warn("retriever: skipping hit, frame recovery failed",
				"video_path", videoPath, "frame_number", hit.FrameNumber, "error", err.Error())
			continue
		}
		out = append(out, SearchResult{
			ChunkText:   hit.ChunkText,
			FrameNumber: hit.FrameNumber,
			DocumentID:  hit.DocumentID,
			VideoPath:   videoPath,
			Similarity:  hit.Similarity,
		})
	}
	return out, nil
}

// SearchMultiple runs Search independently against each path in
// videoPaths, then concatenates and re-sorts by descending similarity
// — NOT a single top-k computed jointly across paths (spec.md §4.5).
func (r *Retriever) SearchMultiple(ctx context.Context, query string, videoPaths []string, k int) ([]SearchResult, error) {
	if k <= 0 || len(videoPaths) == 0 {
		return []SearchResult{}, nil
	}

	var all []SearchResult
	for _, path := range videoPaths {
		results, err := r.Search(ctx, query, path, k)
		if err != nil {
			return nil, fmt.Errorf("retriever: search %q: %w", path, err)
		}
		all = append(all, results...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Similarity > all[j].Similarity
	})
	return all, nil
}

// verifyFrame extracts and decodes the frame for hit, populating the
// cache on success. A decoded text that disagrees with hit.ChunkText is
// logged as a warning, not treated as an error — hit.ChunkText remains
// authoritative either way.
func (r *Retriever) verifyFrame(ctx context.Context, videoPath string, hit vectorindex.IndexEntry) error {
	if _, ok := r.cache.Get(videoPath, hit.FrameNumber); ok {
		return nil
	}
	png, err := r.muxer.ExtractFrame(ctx, videoPath, hit.FrameNumber, r.fps)
	if err != nil {
		return err
	}
	text, err := qr.Decode(png)
	if err != nil {
		return err
	}
	if text != hit.ChunkText {
		r.log.Warn("retriever: decoded frame text does not match stored chunk_text",
			"video_path", videoPath, "frame_number", hit.FrameNumber)
	}
	r.cache.Set(videoPath, hit.FrameNumber, text)
	return nil
}

// ClearCache empties the retriever's frame-text cache.
func (r *Retriever) ClearCache() { r.cache.Clear() }

// CacheLen reports the current number of cached entries, for observability.
func (r *Retriever) CacheLen() int { return r.cache.Len() }

// LRUCache is the default in-process Cache, bounded to a fixed capacity
// via golang-lru — the least-recently-used entry is evicted once full.
type LRUCache struct {
	inner *lru.Cache[string, string]
}

func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	c, _ := lru.New[string, string](capacity)
	return &LRUCache{inner: c}
}

func (c *LRUCache) Get(videoPath string, frameNumber int) (string, bool) {
	return c.inner.Get(cacheKey(videoPath, frameNumber))
}

func (c *LRUCache) Set(videoPath string, frameNumber int, text string) {
	c.inner.Add(cacheKey(videoPath, frameNumber), text)
}

func (c *LRUCache) Clear() { c.inner.Purge() }

func (c *LRUCache) Len() int { return c.inner.Len() }

func cacheKey(videoPath string, frameNumber int) string {
	return fmt.Sprintf("%s#%d", videoPath, frameNumber)
}
