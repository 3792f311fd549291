// Package chunker implements C1: slicing source text into an ordered,
// overlapping sequence of chunks whose index is stable and equal to the
// frame number that will eventually encode it.
package chunker

import (
	"github.com/qrvid/corpus/internal/platform/corerr"
)

// Chunk is a contiguous, immutable slice of source text.
type Chunk struct {
	Text        string
	Index       int
	StartOffset int
	EndOffset   int
}

// Config controls the sliding window. ChunkOverlap must be strictly less
// than ChunkSize.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Chunker slices text on byte (UTF-8 code-unit) boundaries, not codepoint
// boundaries: a chunk may split a multi-byte rune. This is the discipline
// spec.md §4.1 leaves open and SPEC_FULL.md §5 resolves explicitly — QR's
// byte mode carries the raw bytes through the round trip unmodified, so a
// split rune survives encode/decode even though it is not valid UTF-8 in
// isolation.
type Chunker struct {
	cfg Config
}

// New validates cfg and returns a Chunker. Construction refuses to
// complete on an invalid config, per spec.md §7.
func New(cfg Config) (*Chunker, error) {
	if cfg.ChunkSize <= 0 {
		return nil, corerr.Config("chunker", "chunk_size must be positive")
	}
	if cfg.ChunkOverlap < 0 {
		return nil, corerr.Config("chunker", "chunk_overlap must not be negative")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, corerr.Config("chunker", "chunk_overlap must be strictly less than chunk_size")
	}
	return &Chunker{cfg: cfg}, nil
}

// Chunk slices text into an ordered sequence of Chunk. Empty input yields
// an empty, non-nil sequence — a successful no-op per spec.md §4.1, not an
// error.
func (c *Chunker) Chunk(text string) []Chunk {
	raw := []byte(text)
	if len(raw) == 0 {
		return []Chunk{}
	}

	stride := c.cfg.ChunkSize - c.cfg.ChunkOverlap
	out := make([]Chunk, 0, len(raw)/stride+1)

	idx := 0
	for i := 0; i < len(raw); i += stride {
		end := i + c.cfg.ChunkSize
		if end > len(raw) {
			end = len(raw)
		}
		out = append(out, Chunk{
			Text:        string(raw[i:end]),
			Index:       idx,
			StartOffset: i,
			EndOffset:   end,
		})
		idx++
	}
	return out
}

// Reassemble concatenates chunks (already ordered by Index) and removes
// the overlap region from every chunk but the last, reproducing the
// source text covered by the chunk sequence. Used by property tests and
// by callers who want to validate round-trip faithfulness (spec.md §8
// property 2). When the chunks carry offsets, the overlap removed is the
// one actually shared with the next chunk, which is shorter than
// chunkOverlap for a short chunk at the end of the text.
func Reassemble(chunks []Chunk, chunkOverlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	out := make([]byte, 0)
	for i, ch := range chunks {
		text := ch.Text
		if i < len(chunks)-1 {
			overlap := chunkOverlap
			if next := chunks[i+1]; next.StartOffset > ch.StartOffset && ch.EndOffset > next.StartOffset {
				overlap = ch.EndOffset - next.StartOffset
			}
			if overlap > 0 && overlap < len(text) {
				text = text[:len(text)-overlap]
			}
		}
		out = append(out, text...)
	}
	return string(out)
}
