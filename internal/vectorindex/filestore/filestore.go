// Package filestore persists a flat list of IndexEntry as a serialised
// JSON document after every upsert/delete/clear. Explicitly not
// crash-safe (spec.md §4.4): a write that's interrupted mid-flush can
// leave the file short or truncated. Intended for development, not
// production durability.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/vectorindex"
	"github.com/qrvid/corpus/internal/vectorindex/memory"
)

type Store struct {
	path string
	mem  *memory.Store
	mu   sync.Mutex
}

// Open loads path (if it exists) into an in-memory Store and returns a
// Store that persists every subsequent mutation back to path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, mem: memory.New()}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, corerr.IO("filestore", "read store file", err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	var entries []vectorindex.IndexEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, corerr.IO("filestore", "decode store file", err)
	}
	s.mem.Load(entries)
	return s, nil
}

func (s *Store) Upsert(ctx context.Context, entries []vectorindex.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Upsert(ctx, entries); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vectorindex.IndexEntry, error) {
	return s.mem.Search(ctx, query, k)
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Delete(ctx, documentID); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Clear(ctx); err != nil {
		return err
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	raw, err := json.Marshal(s.mem.Snapshot())
	if err != nil {
		return corerr.IO("filestore", "encode store file", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return corerr.IO("filestore", "create store directory", err)
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return corerr.IO("filestore", "write store file", err)
	}
	return nil
}
