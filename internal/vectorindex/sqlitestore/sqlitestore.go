// Package sqlitestore is a relational VectorDatabase backend: entries
// live in a SQLite table via gorm, embeddings are stored as a JSON blob
// in a plain []byte column, and Search does the cosine ranking in Go after
// loading the candidate rows — SQLite has no native vector index, so this
// is still a linear scan, just backed by a real SQL table instead of a
// process-local slice.
package sqlitestore

import (
	"context"
	"encoding/json"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/vectorindex"
)

type entryRow struct {
	ID          uint `gorm:"primaryKey"`
	DocumentID  string `gorm:"index;uniqueIndex:doc_frame"`
	FrameNumber int    `gorm:"uniqueIndex:doc_frame"`
	ChunkText   string
	Embedding   []byte // JSON-encoded []float32
	Metadata    []byte // JSON-encoded map[string]string
}

func (entryRow) TableName() string { return "index_entries" }

type Store struct {
	db *gorm.DB
}

// Open opens (creating if necessary) a SQLite database at path and
// migrates the index_entries table.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, corerr.IO("sqlitestore", "open database", err)
	}
	if err := db.AutoMigrate(&entryRow{}); err != nil {
		return nil, corerr.IO("sqlitestore", "migrate schema", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Upsert(ctx context.Context, entries []vectorindex.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]entryRow, 0, len(entries))
	for _, e := range entries {
		embBytes, err := json.Marshal(e.Embedding)
		if err != nil {
			return corerr.IndexBackend("sqlitestore", "encode embedding", err)
		}
		metaBytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return corerr.IndexBackend("sqlitestore", "encode metadata", err)
		}
		rows = append(rows, entryRow{
			DocumentID:  e.DocumentID,
			FrameNumber: e.FrameNumber,
			ChunkText:   e.ChunkText,
			Embedding:   embBytes,
			Metadata:    metaBytes,
		})
	}

	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "frame_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"chunk_text", "embedding", "metadata"}),
		}).
		Create(&rows)
	if tx.Error != nil {
		return corerr.IndexBackend("sqlitestore", "upsert rows", tx.Error)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vectorindex.IndexEntry, error) {
	if k <= 0 {
		return []vectorindex.IndexEntry{}, nil
	}
	var rows []entryRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, corerr.IndexBackend("sqlitestore", "scan rows", err)
	}

	scored := make([]vectorindex.IndexEntry, 0, len(rows))
	for _, r := range rows {
		entry, err := rowToEntry(r)
		if err != nil {
			return nil, err
		}
		entry.Similarity = vectorindex.CosineSimilarity(query, entry.Embedding)
		scored = append(scored, entry)
	}

	sortBySimilarityDesc(scored)
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&entryRow{}).Error; err != nil {
		return corerr.IndexBackend("sqlitestore", "delete document", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&entryRow{}).Error; err != nil {
		return corerr.IndexBackend("sqlitestore", "clear store", err)
	}
	return nil
}

func rowToEntry(r entryRow) (vectorindex.IndexEntry, error) {
	var emb []float32
	if err := json.Unmarshal(r.Embedding, &emb); err != nil {
		return vectorindex.IndexEntry{}, corerr.IndexBackend("sqlitestore", "decode embedding", err)
	}
	var meta map[string]string
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &meta); err != nil {
			return vectorindex.IndexEntry{}, corerr.IndexBackend("sqlitestore", "decode metadata", err)
		}
	}
	return vectorindex.IndexEntry{
		ChunkText:   r.ChunkText,
		Embedding:   emb,
		FrameNumber: r.FrameNumber,
		DocumentID:  r.DocumentID,
		Metadata:    meta,
	}, nil
}

func sortBySimilarityDesc(entries []vectorindex.IndexEntry) {
	// A stable insertion sort over the full table scan; entries with
	// equal similarity keep their row order.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Similarity > entries[j-1].Similarity; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}
