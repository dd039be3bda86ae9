package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/research-reports/internal/platform/httpx"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

func TestVectorStoreQueryNamespacesAndKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rg:support", req.Namespace)
		assert.True(t, req.IncludeMetadata)
		assert.Equal(t, 10, req.TopK)
		_ = json.NewEncoder(w).Encode(QueryResponse{Matches: []QueryMatch{
			{ID: "doc-2", Score: 0.7, Metadata: map[string]any{"excerpt": "two"}},
			{ID: "", Score: 0.6},
			{ID: "doc-1", Score: 0.7},
		}})
	}))
	defer srv.Close()

	pc, err := NewClient(logger.Nop(), Config{APIKey: "pc-key"})
	require.NoError(t, err)
	store, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexHost: srv.URL})
	require.NoError(t, err)

	matches, err := store.Query(context.Background(), "support", []float32{0.1, 0.2}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc-2", matches[0].ID)
	assert.Equal(t, "two", matches[0].Metadata["excerpt"])
	assert.Equal(t, "doc-1", matches[1].ID)
}

func TestVectorStoreUpsert(t *testing.T) {
	var got UpsertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/vectors/upsert", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"upsertedCount":1}`))
	}))
	defer srv.Close()

	pc, err := NewClient(logger.Nop(), Config{APIKey: "pc-key"})
	require.NoError(t, err)
	store, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexHost: srv.URL, NamespacePrefix: "x"})
	require.NoError(t, err)

	err = store.Upsert(context.Background(), "c1", []vector.Point{{ID: "d1", Values: []float32{1}, Metadata: map[string]any{"title": "t"}}})
	require.NoError(t, err)
	assert.Equal(t, "x:c1", got.Namespace)
	require.Len(t, got.Vectors, 1)
	assert.Equal(t, "d1", got.Vectors[0].ID)
}

func TestQueryStatusErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	pc, err := NewClient(logger.Nop(), Config{APIKey: "pc-key"})
	require.NoError(t, err)
	_, err = pc.Query(context.Background(), srv.URL, QueryRequest{Vector: []float32{1}})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.True(t, httpx.IsRetryableError(err))
}

func TestNewVectorStoreResolvesHostViaDescribeIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/indexes/reports", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"reports","host":"reports-abc.svc.pinecone.io","dimension":1536}`))
	}))
	defer srv.Close()

	pc, err := NewClient(logger.Nop(), Config{APIKey: "pc-key", BaseURL: srv.URL})
	require.NoError(t, err)
	store, err := NewVectorStore(context.Background(), logger.Nop(), pc, StoreConfig{IndexName: "reports"})
	require.NoError(t, err)
	assert.Equal(t, "reports-abc.svc.pinecone.io", store.indexHost)
}
