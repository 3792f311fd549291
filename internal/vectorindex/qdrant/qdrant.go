// Package qdrant is a VectorDatabase backend over a Qdrant HTTP collection.
// It implements the vectorindex.VectorDatabase contract directly (no
// intermediate vector-store abstraction): points are addressed by a
// deterministic UUID derived from (document_id, frame_number), and
// chunk text / frame number / caller metadata all live in the point
// payload so Search can reconstruct a full IndexEntry from the response
// alone.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qrvid/corpus/internal/platform/corerr"
	"github.com/qrvid/corpus/internal/platform/ctxutil"
	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/vectorindex"
)

const (
	payloadDocumentIDKey  = "document_id"
	payloadFrameNumberKey = "frame_number"
	payloadChunkTextKey   = "chunk_text"
	payloadMetadataKey    = "metadata"
	maxErrorBodyBytes     = 1024
	scrollPageSize        = 256
)

var pointIDNamespace = uuid.MustParse("0f1705d1-2c3f-4e40-b2f4-f855f7d3c8e8")

// Config describes the Qdrant collection this backend talks to.
type Config struct {
	URL        string
	Collection string
	VectorDim  int
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "qdrant url is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid qdrant url %q; expected absolute URL like http://localhost:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "qdrant collection is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid qdrant vector dim %q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || strings.TrimSpace(parsed.Scheme) == "" || strings.TrimSpace(parsed.Host) == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}

type Store struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client
}

type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

type searchHit struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type scrollPage struct {
	Points        []searchHit     `json:"points"`
	NextPageOffset json.RawMessage `json:"next_page_offset"`
}

// Open validates cfg and returns a Store backed by the Qdrant HTTP API at
// cfg.URL. It does not verify the collection exists; the first real
// operation surfaces any connectivity problem.
func Open(log *logger.Logger, cfg Config) (*Store, error) {
	if log == nil {
		return nil, corerr.Config("qdrant", "logger required")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, corerr.New(corerr.KindConfig, "qdrant", err.Error(), err)
	}
	return &Store{
		log:     log.With("service", "qdrant_vector_index"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *Store) Upsert(ctx context.Context, entries []vectorindex.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if s.cfg.VectorDim > 0 && len(e.Embedding) != s.cfg.VectorDim {
			return corerr.IndexBackend("qdrant", fmt.Sprintf(
				"embedding dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(e.Embedding)), nil)
		}
		payload := map[string]any{
			payloadDocumentIDKey:  e.DocumentID,
			payloadFrameNumberKey: e.FrameNumber,
			payloadChunkTextKey:   e.ChunkText,
			payloadMetadataKey:    e.Metadata,
		}
		points = append(points, map[string]any{
			"id":      pointID(e.DocumentID, e.FrameNumber),
			"vector":  e.Embedding,
			"payload": payload,
		})
	}

	req := map[string]any{"points": points}
	return s.doJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil)
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]vectorindex.IndexEntry, error) {
	if k <= 0 {
		return []vectorindex.IndexEntry{}, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	var hits []searchHit
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/search"), req, &hits); err != nil {
		return nil, err
	}

	out := make([]vectorindex.IndexEntry, 0, len(hits))
	for _, h := range hits {
		out = append(out, hitToEntry(h))
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	req := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": payloadDocumentIDKey, "match": map[string]any{"value": documentID}},
			},
		},
	}
	return s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), req, nil)
}

// Clear removes every point in the collection by scrolling through all
// point IDs and deleting them in pages; Qdrant has no single "truncate
// collection" verb over this API surface.
func (s *Store) Clear(ctx context.Context) error {
	var offset json.RawMessage
	for {
		page, err := s.scrollPage(ctx, offset)
		if err != nil {
			return err
		}
		if len(page.Points) == 0 {
			return nil
		}
		ids := make([]json.RawMessage, 0, len(page.Points))
		for _, p := range page.Points {
			ids = append(ids, p.ID)
		}
		delReq := map[string]any{"points": ids}
		if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/delete?wait=true"), delReq, nil); err != nil {
			return err
		}
		if len(page.NextPageOffset) == 0 || string(page.NextPageOffset) == "null" {
			return nil
		}
		offset = page.NextPageOffset
	}
}

func (s *Store) scrollPage(ctx context.Context, offset json.RawMessage) (scrollPage, error) {
	req := map[string]any{
		"limit":        scrollPageSize,
		"with_payload": false,
		"with_vector":  false,
	}
	if len(offset) > 0 {
		var raw any
		if err := json.Unmarshal(offset, &raw); err == nil {
			req["offset"] = raw
		}
	}
	var page scrollPage
	if err := s.doJSON(ctx, http.MethodPost, s.collectionPath("/points/scroll"), req, &page); err != nil {
		return scrollPage{}, err
	}
	return page, nil
}

func (s *Store) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return corerr.IndexBackend("qdrant", "encode request", err)
		}
		body = &buf
	}

	httpReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return corerr.IndexBackend("qdrant", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(httpReq)
	if err != nil {
		return classifyHTTPError(err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return corerr.IndexBackend("qdrant", "read response", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return corerr.IndexBackend("qdrant", fmt.Sprintf("http status=%d body=%q", resp.StatusCode, truncateBody(raw)), nil)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return corerr.IndexBackend("qdrant", "decode envelope", err)
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return corerr.IndexBackend("qdrant", "decode result", err)
	}
	return nil
}

func classifyHTTPError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return corerr.IndexBackend("qdrant", "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return corerr.IndexBackend("qdrant", "request timed out", err)
	}
	return corerr.IndexBackend("qdrant", "request failed", err)
}

func hitToEntry(h searchHit) vectorindex.IndexEntry {
	entry := vectorindex.IndexEntry{Similarity: h.Score}
	if docID, ok := h.Payload[payloadDocumentIDKey].(string); ok {
		entry.DocumentID = docID
	}
	if chunkText, ok := h.Payload[payloadChunkTextKey].(string); ok {
		entry.ChunkText = chunkText
	}
	if frameNumber, ok := h.Payload[payloadFrameNumberKey].(float64); ok {
		entry.FrameNumber = int(frameNumber)
	}
	if meta, ok := h.Payload[payloadMetadataKey].(map[string]any); ok {
		entry.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			if sv, ok := v.(string); ok {
				entry.Metadata[k] = sv
			}
		}
	}
	return entry
}

func pointID(documentID string, frameNumber int) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(fmt.Sprintf("%s|%d", documentID, frameNumber))).String()
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// Collection path helper, mirroring the teacher's /collections/{name}
// path-building idiom.
func (s *Store) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}
