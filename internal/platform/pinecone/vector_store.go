package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

type StoreConfig struct {
	IndexName       string
	IndexHost       string
	NamespacePrefix string
}

type VectorStore struct {
	log       *logger.Logger
	pc        Client
	indexHost string
	nsPrefix  string
}

var _ vector.Store = (*VectorStore)(nil)

func NewVectorStore(ctx context.Context, log *logger.Logger, pc Client, cfg StoreConfig) (*VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	host := strings.TrimSpace(cfg.IndexHost)
	if host == "" {
		indexName := strings.TrimSpace(cfg.IndexName)
		if indexName == "" {
			return nil, fmt.Errorf("missing PINECONE_INDEX_NAME")
		}
		desc, err := pc.DescribeIndex(ctx, indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		log.Warn("PINECONE_INDEX_HOST not set; resolved via describe_index",
			"index_name", indexName,
			"index_host", host,
		)
	}
	nsPrefix := strings.TrimSpace(cfg.NamespacePrefix)
	if nsPrefix == "" {
		nsPrefix = "rg"
	}
	return &VectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexHost: host,
		nsPrefix:  nsPrefix,
	}, nil
}

func (s *VectorStore) Upsert(ctx context.Context, namespace string, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	vectors := make([]Vector, 0, len(points))
	for _, p := range points {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("pinecone upsert: point id required")
		}
		vectors = append(vectors, Vector{ID: p.ID, Values: p.Values, Metadata: p.Metadata})
	}
	_, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
		Namespace: s.qualifyNamespace(namespace),
		Vectors:   vectors,
	})
	return err
}

func (s *VectorStore) Query(ctx context.Context, namespace string, q []float32, topK int) ([]vector.Match, error) {
	resp, err := s.pc.Query(ctx, s.indexHost, QueryRequest{
		Namespace:       s.qualifyNamespace(namespace),
		Vector:          q,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	out := make([]vector.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if strings.TrimSpace(m.ID) == "" {
			continue
		}
		out = append(out, vector.Match{ID: m.ID, Score: m.Score, Metadata: m.Metadata})
	}
	return out, nil
}

func (s *VectorStore) qualifyNamespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return s.nsPrefix
	}
	return s.nsPrefix + ":" + ns
}
