package app

import (
	"context"
	"time"

	"github.com/yungbote/research-reports/internal/observability"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

type instrumentedVectorStore struct {
	provider string
	inner    vector.Store
	metrics  *observability.Metrics
}

func instrumentVectorStore(provider string, inner vector.Store, metrics *observability.Metrics) vector.Store {
	if inner == nil {
		return nil
	}
	return &instrumentedVectorStore{provider: provider, inner: inner, metrics: metrics}
}

func (s *instrumentedVectorStore) Upsert(ctx context.Context, namespace string, points []vector.Point) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, namespace, points)
	s.observe("upsert", err, time.Since(start))
	return err
}

func (s *instrumentedVectorStore) Query(ctx context.Context, namespace string, q []float32, topK int) ([]vector.Match, error) {
	start := time.Now()
	out, err := s.inner.Query(ctx, namespace, q, topK)
	s.observe("query", err, time.Since(start))
	return out, err
}

func (s *instrumentedVectorStore) observe(operation string, err error, dur time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveStage(s.provider+"_"+operation, status, dur)
}
