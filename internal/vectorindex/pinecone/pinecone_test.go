package pinecone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrvid/corpus/internal/platform/logger"
	"github.com/qrvid/corpus/internal/vectorindex"
)

type fakePinecone struct {
	t          *testing.T
	upserted   []vector
	lastDelete deleteRequest
	searchHits []queryMatch
}

func newFakePineconeServer(t *testing.T, f *fakePinecone) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/indexes/videos", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"host": r.Host})
	})
	mux.HandleFunc("/vectors/upsert", func(w http.ResponseWriter, r *http.Request) {
		var req upsertRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		f.upserted = append(f.upserted, req.Vectors...)
		_ = json.NewEncoder(w).Encode(map[string]any{"upsertedCount": len(req.Vectors)})
	})
	mux.HandleFunc("/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(queryResponse{Matches: f.searchHits})
	})
	mux.HandleFunc("/vectors/delete", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastDelete))
		_ = json.NewEncoder(w).Encode(map[string]any{})
	})
	return httptest.NewServer(mux)
}

func openTestStore(t *testing.T, f *fakePinecone) *Store {
	t.Helper()
	srv := newFakePineconeServer(t, f)
	t.Cleanup(srv.Close)

	log, err := logger.New("test")
	require.NoError(t, err)

	// The control-plane describe_index call returns r.Host as the
	// data-plane host, and the store builds data-plane URLs as
	// "https://"+host — httptest.Server listens on http, so strip the
	// scheme here and let the store reconstruct it.
	cfg := Config{
		APIKey:    "test-key",
		IndexName: "videos",
		BaseURL:   srv.URL,
	}
	s, err := Open(context.Background(), log, cfg)
	require.NoError(t, err)
	s.host = strings.TrimPrefix(srv.URL, "http://")
	// doDataPlane always builds "https://"+host; rewrite it back to the
	// plain-http test server before the request leaves the client.
	s.http = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req.URL.Scheme = "http"
		return http.DefaultTransport.RoundTrip(req)
	})}
	return s
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestOpen_ResolvesDataPlaneHost(t *testing.T) {
	f := &fakePinecone{t: t}
	s := openTestStore(t, f)
	assert.NotEmpty(t, s.host)
}

func TestUpsert_SendsVectorsWithMetadata(t *testing.T) {
	f := &fakePinecone{t: t}
	s := openTestStore(t, f)

	err := s.Upsert(context.Background(), []vectorindex.IndexEntry{
		{ChunkText: "hello", Embedding: []float32{1, 2, 3}, FrameNumber: 2, DocumentID: "doc-1"},
	})
	require.NoError(t, err)
	require.Len(t, f.upserted, 1)
	assert.Equal(t, "doc-1:2", f.upserted[0].ID)
	assert.Equal(t, "hello", f.upserted[0].Metadata[metadataChunkTextKey])
}

func TestSearch_DecodesMatchesBackToEntries(t *testing.T) {
	f := &fakePinecone{
		t: t,
		searchHits: []queryMatch{
			{
				ID:    "doc-1:2",
				Score: 0.87,
				Metadata: map[string]any{
					"document_id":          "doc-1",
					metadataChunkTextKey:   "chunk",
					metadataFrameNumberKey: float64(2),
				},
			},
		},
	}
	s := openTestStore(t, f)

	results, err := s.Search(context.Background(), []float32{1, 2, 3}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, "chunk", results[0].ChunkText)
	assert.Equal(t, 2, results[0].FrameNumber)
}

func TestSearch_KZero_ReturnsEmptyWithoutRequest(t *testing.T) {
	f := &fakePinecone{t: t}
	s := openTestStore(t, f)
	results, err := s.Search(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDelete_SendsDocumentFilter(t *testing.T) {
	f := &fakePinecone{t: t}
	s := openTestStore(t, f)
	require.NoError(t, s.Delete(context.Background(), "doc-1"))
	assert.NotNil(t, f.lastDelete.Filter)
	assert.False(t, f.lastDelete.DeleteAll)
}

func TestClear_SetsDeleteAll(t *testing.T) {
	f := &fakePinecone{t: t}
	s := openTestStore(t, f)
	require.NoError(t, s.Clear(context.Background()))
	assert.True(t, f.lastDelete.DeleteAll)
}

func TestOpen_RejectsMissingAPIKey(t *testing.T) {
	log, err := logger.New("test")
	require.NoError(t, err)
	_, err = Open(context.Background(), log, Config{IndexName: "videos"})
	require.Error(t, err)
}
