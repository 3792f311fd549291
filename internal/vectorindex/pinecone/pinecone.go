// Package pinecone is a VectorDatabase backend over the Pinecone data
// plane API. A describe_index control-plane call resolves the
// per-index data-plane host once at Open time; every subsequent
// Upsert/Search/Delete/Clear call hits that host directly.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/ctxutil"
	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/vectorindex"
)

const (
	metadataChunkTextKey   = "chunk_text"
	metadataFrameNumberKey = "frame_number"
	metadataPrefix         = "meta_"
)

type Config struct {
	APIKey     string
	IndexName  string
	Namespace  string
	APIVersion string
	BaseURL    string
	Timeout    time.Duration
}

type Store struct {
	log  *logger.Logger
	cfg  Config
	host string
	http *http.Client
}

// Open resolves cfg.IndexName to a data-plane host via the Pinecone
// control plane, then returns a Store bound to that host.
func Open(ctx context.Context, log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, corerr.Config("pinecone", "logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, corerr.Config("pinecone", "api key required")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, corerr.Config("pinecone", "index name required")
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = "2025-10"
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.pinecone.io"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	s := &Store{
		log:  log.With("service", "pinecone_vector_index"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}

	host, err := s.describeIndexHost(ctx)
	if err != nil {
		return nil, err
	}
	s.host = host
	s.log.Info("pinecone vector index resolved", "index", cfg.IndexName, "host", host)
	return s, nil
}

type indexDescription struct {
	Host string `json:"host"`
}

func (s *Store) describeIndexHost(ctx context.Context) (string, error) {
	u := strings.TrimRight(s.cfg.BaseURL, "/") + "/indexes/" + s.cfg.IndexName
	var out indexDescription
	if err := s.doControlPlane(ctx, http.MethodGet, u, nil, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Host) == "" {
		return "", corerr.IndexBackend("pinecone", "describe_index returned empty host", nil)
	}
	return out.Host, nil
}

type vector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []vector `json:"vectors"`
	Namespace string   `json:"namespace,omitempty"`
}

func (s *Store) Upsert(ctx context.Context, entries []vectorindex.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	vectors := make([]vector, 0, len(entries))
	for _, e := range entries {
		vectors = append(vectors, vector{
			ID:       vectorID(e.DocumentID, e.FrameNumber),
			Values:   e.Embedding,
			Metadata: toPineconeMetadata(e),
		})
	}
	u := "https://" + s.host + "/vectors/upsert"
	var out struct {
		UpsertedCount int64 `json:"upsertedCount"`
	}
	return s.doDataPlane(ctx, u, upsertRequest{Vectors: vectors, Namespace: s.cfg.Namespace}, &out)
}

type queryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	IncludeMetadata bool           `json:"includeMetadata"`
	Filter          map[string]any `json:"filter,omitempty"`
}

type queryMatch struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vectorindex.IndexEntry, error) {
	if k <= 0 {
		return []vectorindex.IndexEntry{}, nil
	}
	u := "https://" + s.host + "/query"
	var out queryResponse
	req := queryRequest{
		Namespace:       s.cfg.Namespace,
		Vector:          query,
		TopK:            k,
		IncludeMetadata: true,
	}
	if err := s.doDataPlane(ctx, u, req, &out); err != nil {
		return nil, err
	}

	entries := make([]vectorindex.IndexEntry, 0, len(out.Matches))
	for _, m := range out.Matches {
		entries = append(entries, fromPineconeMatch(m))
	}
	return entries, nil
}

type deleteRequest struct {
	Filter    map[string]any `json:"filter,omitempty"`
	DeleteAll bool           `json:"deleteAll,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	u := "https://" + s.host + "/vectors/delete"
	req := deleteRequest{
		Namespace: s.cfg.Namespace,
		Filter: map[string]any{
			"document_id": map[string]any{"$eq": documentID},
		},
	}
	return s.doDataPlane(ctx, u, req, nil)
}

func (s *Store) Clear(ctx context.Context) error {
	u := "https://" + s.host + "/vectors/delete"
	req := deleteRequest{Namespace: s.cfg.Namespace, DeleteAll: true}
	return s.doDataPlane(ctx, u, req, nil)
}

func (s *Store) doControlPlane(ctx context.Context, method, url string, body, out any) error {
	return s.doJSON(ctx, method, url, body, out, true)
}

func (s *Store) doDataPlane(ctx context.Context, url string, body, out any) error {
	return s.doJSON(ctx, http.MethodPost, url, body, out, false)
}

func (s *Store) doJSON(ctx context.Context, method, url string, body, out any, controlPlane bool) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return corerr.IndexBackend("pinecone", "encode request", err)
		}
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, url, &buf)
	if err != nil {
		return corerr.IndexBackend("pinecone", "build request", err)
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pinecone-Api-Version", s.cfg.APIVersion)

	resp, err := s.http.Do(req)
	if err != nil {
		return corerr.IndexBackend("pinecone", "request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return corerr.IndexBackend("pinecone", fmt.Sprintf("http %d: %s", resp.StatusCode, string(raw)), nil)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return corerr.IndexBackend("pinecone", "decode response", err)
	}
	return nil
}

func vectorID(documentID string, frameNumber int) string {
	return fmt.Sprintf("%s:%d", documentID, frameNumber)
}

func toPineconeMetadata(e vectorindex.IndexEntry) map[string]any {
	meta := map[string]any{
		"document_id":          e.DocumentID,
		metadataChunkTextKey:   e.ChunkText,
		metadataFrameNumberKey: e.FrameNumber,
	}
	for k, v := range e.Metadata {
		meta[metadataPrefix+k] = v
	}
	return meta
}

func fromPineconeMatch(m queryMatch) vectorindex.IndexEntry {
	entry := vectorindex.IndexEntry{Similarity: m.Score}
	if docID, ok := m.Metadata["document_id"].(string); ok {
		entry.DocumentID = docID
	}
	if chunkText, ok := m.Metadata[metadataChunkTextKey].(string); ok {
		entry.ChunkText = chunkText
	}
	if frameNumber, ok := m.Metadata[metadataFrameNumberKey].(float64); ok {
		entry.FrameNumber = int(frameNumber)
	}
	userMeta := make(map[string]string)
	for k, v := range m.Metadata {
		if !strings.HasPrefix(k, metadataPrefix) {
			continue
		}
		if sv, ok := v.(string); ok {
			userMeta[strings.TrimPrefix(k, metadataPrefix)] = sv
		}
	}
	if len(userMeta) > 0 {
		entry.Metadata = userMeta
	}
	return entry
}
