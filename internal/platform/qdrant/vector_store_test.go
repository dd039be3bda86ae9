package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/documents/points" || r.URL.RawQuery != "wait=true" {
			t.Fatalf("url: got=%s", r.URL.String())
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	meta := map[string]any{"title": "Q3 tickets"}
	err := s.Upsert(context.Background(), "support", []vector.Point{
		{ID: "doc-1", Values: []float32{1, 2, 3}, Metadata: meta},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	points, ok := captured["points"].([]any)
	if !ok || len(points) != 1 {
		t.Fatalf("points: got=%v", captured["points"])
	}
	first := points[0].(map[string]any)
	if first["id"] != s.pointID("rg:support", "doc-1") {
		t.Fatalf("point id mismatch: got=%v", first["id"])
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadNamespaceKey] != "rg:support" || payload[payloadVectorIDKey] != "doc-1" {
		t.Fatalf("payload bookkeeping: got=%v", payload)
	}
	if _, exists := meta[payloadNamespaceKey]; exists {
		t.Fatalf("input metadata mutated")
	}
}

func TestVectorStoreUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request")
		return nil, nil
	})
	err := s.Upsert(context.Background(), "support", []vector.Point{{ID: "doc-1", Values: []float32{1}}})
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorValidation {
		t.Fatalf("expected validation error, got=%v", err)
	}
}

func TestVectorStoreQueryKeepsProviderOrder(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/documents/points/search" {
			t.Fatalf("path: got=%q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": "p-b", "score": 0.8, "payload": map[string]any{payloadVectorIDKey: "doc-b", "excerpt": "b"}},
			{"id": "p-a", "score": 0.8, "payload": map[string]any{payloadVectorIDKey: "doc-a", "excerpt": "a"}},
			{"id": "p-c", "score": 0.5, "payload": map[string]any{payloadVectorIDKey: "doc-c"}},
		}), nil
	})

	matches, err := s.Query(context.Background(), "support", []float32{1, 2, 3}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := []string{}
	for _, m := range matches {
		got = append(got, m.ID)
	}
	if fmt.Sprint(got) != "[doc-b doc-a doc-c]" {
		t.Fatalf("order: want provider order, got=%v", got)
	}
	if matches[0].Metadata["excerpt"] != "b" {
		t.Fatalf("metadata: got=%v", matches[0].Metadata)
	}
	if _, leaked := matches[0].Metadata[payloadVectorIDKey]; leaked {
		t.Fatalf("bookkeeping key leaked into metadata")
	}
	if captured["limit"] != float64(10) {
		t.Fatalf("limit: got=%v", captured["limit"])
	}
	must := captured["filter"].(map[string]any)["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != payloadNamespaceKey || cond["match"].(map[string]any)["value"] != "rg:support" {
		t.Fatalf("namespace filter: got=%v", cond)
	}
}

func TestVectorStoreQueryNormalizesDistanceScores(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return okResponse(t, []map[string]any{
			{"id": 7, "score": 0.0, "payload": map[string]any{}},
			{"id": 8, "score": 3.0, "payload": map[string]any{}},
		}), nil
	})
	s.distance = "Euclid"
	matches, err := s.Query(context.Background(), "support", []float32{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if matches[0].ID != "7" || matches[0].Score != 1 || matches[1].Score != 0.25 {
		t.Fatalf("normalized: got=%+v", matches)
	}
}

func TestVectorStoreQueryHTTPErrorCarriesStatus(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusServiceUnavailable,
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader([]byte("down"))),
		}, nil
	})
	_, err := s.Query(context.Background(), "support", []float32{1, 2, 3}, 2)
	var opErr *OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got=%T", err)
	}
	if opErr.HTTPStatusCode() != http.StatusServiceUnavailable || opErr.Code != OperationErrorQueryFailed {
		t.Fatalf("unexpected error: %+v", opErr)
	}
}

func TestVectorStoreReadyReadsDistance(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/readyz" {
			return &http.Response{StatusCode: http.StatusOK, Header: make(http.Header), Body: io.NopCloser(bytes.NewReader(nil))}, nil
		}
		return okResponse(t, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 3, "distance": "Dot"}}},
		}), nil
	})
	if err := s.Ready(context.Background()); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if s.distance != "Dot" {
		t.Fatalf("distance: got=%q", s.distance)
	}
}

func TestClassifyHTTPCallError(t *testing.T) {
	err := classifyHTTPCallError("query", "timeout", context.DeadlineExceeded)
	var opErr *OperationError
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorTimeout {
		t.Fatalf("expected timeout, got=%v", err)
	}
	err = classifyHTTPCallError("query", "transport", fmt.Errorf("boom"))
	if !errors.As(err, &opErr) || opErr.Code != OperationErrorTransportFailed {
		t.Fatalf("expected transport failure, got=%v", err)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *VectorStore {
	t.Helper()
	s, err := NewVectorStore(logger.Nop(), Config{URL: "http://qdrant.local", Collection: "documents", VectorDim: 3})
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	s.WithHTTPClient(&http.Client{Transport: roundTripFunc(roundTrip)})
	s.distance = "Cosine"
	return s
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
