package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/vectorindex"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]any{"result": result, "status": "ok"})
	require.NoError(t, err)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestStore(t *testing.T, rt roundTripFunc) *Store {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	s, err := Open(log, Config{URL: "http://qdrant.local", Collection: "videos", VectorDim: 3})
	require.NoError(t, err)
	s.http = &http.Client{Transport: rt}
	return s
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)

	_, err = Open(log, Config{Collection: "videos", VectorDim: 3})
	require.Error(t, err)

	_, err = Open(log, Config{URL: "http://qdrant.local", VectorDim: 3})
	require.Error(t, err)

	_, err = Open(log, Config{URL: "http://qdrant.local", Collection: "videos"})
	require.Error(t, err)
}

func TestUpsert_RequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/collections/videos/points", r.URL.Path)
		assert.Equal(t, "wait=true", r.URL.RawQuery)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		return okResponse(t, nil), nil
	})

	err := s.Upsert(context.Background(), []vectorindex.IndexEntry{
		{ChunkText: "hello", Embedding: []float32{1, 2, 3}, FrameNumber: 0, DocumentID: "doc-1"},
	})
	require.NoError(t, err)

	points := captured["points"].([]any)
	require.Len(t, points, 1)
	point := points[0].(map[string]any)
	assert.Equal(t, pointID("doc-1", 0), point["id"])
	payload := point["payload"].(map[string]any)
	assert.Equal(t, "doc-1", payload[payloadDocumentIDKey])
	assert.Equal(t, "hello", payload[payloadChunkTextKey])
}

func TestUpsert_RejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("should not issue a request on validation failure")
		return nil, nil
	})

	err := s.Upsert(context.Background(), []vectorindex.IndexEntry{
		{ChunkText: "hello", Embedding: []float32{1, 2}, FrameNumber: 0, DocumentID: "doc-1"},
	})
	require.Error(t, err)
}

func TestSearch_DecodesHitsIntoEntries(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/collections/videos/points/search", r.URL.Path)
		return okResponse(t, []map[string]any{
			{
				"id":    "point-a",
				"score": 0.92,
				"payload": map[string]any{
					payloadDocumentIDKey:  "doc-1",
					payloadChunkTextKey:   "chunk text",
					payloadFrameNumberKey: float64(4),
				},
			},
		}), nil
	})

	results, err := s.Search(context.Background(), []float32{1, 2, 3}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, "chunk text", results[0].ChunkText)
	assert.Equal(t, 4, results[0].FrameNumber)
	assert.InDelta(t, 0.92, results[0].Similarity, 1e-9)
}

func TestSearch_KZero_NoRequest(t *testing.T) {
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("should not issue a request when k<=0")
		return nil, nil
	})
	results, err := s.Search(context.Background(), []float32{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete_SendsDocumentFilter(t *testing.T) {
	var captured map[string]any
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/collections/videos/points/delete", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		return okResponse(t, nil), nil
	})

	require.NoError(t, s.Delete(context.Background(), "doc-1"))
	filter := captured["filter"].(map[string]any)
	must := filter["must"].([]any)
	require.Len(t, must, 1)
	cond := must[0].(map[string]any)
	assert.Equal(t, payloadDocumentIDKey, cond["key"])
}

func TestClear_DrainsScrollPages(t *testing.T) {
	calls := 0
	s := newTestStore(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/collections/videos/points/scroll":
			calls++
			if calls == 1 {
				return okResponse(t, map[string]any{
					"points":           []map[string]any{{"id": "a"}, {"id": "b"}},
					"next_page_offset": "b",
				}), nil
			}
			return okResponse(t, map[string]any{"points": []map[string]any{}}), nil
		case r.URL.Path == "/collections/videos/points/delete":
			return okResponse(t, nil), nil
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
			return nil, nil
		}
	})

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestClassifyHTTPError_NonNilAlwaysReturnsError(t *testing.T) {
	err := classifyHTTPError(context.DeadlineExceeded)
	require.Error(t, err)
}
