package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"
	"time"

	"github.com/yungbote/research-reports/internal/observability"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/pinecone"
	"github.com/yungbote/research-reports/internal/platform/qdrant"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

var (
	resolveQdrantConfig    = qdrant.ResolveConfigFromEnv
	newQdrantVectorStore   = qdrantVectorStore
	newPineconeClient      = pinecone.NewClient
	newPineconeVectorStore = pineconeVectorStore
)

func qdrantVectorStore(log *logger.Logger, cfg qdrant.Config) (vector.Store, error) {
	vs, err := qdrant.NewVectorStore(log, cfg)
	if err != nil {
		return nil, err
	}
	return vs, nil
}

func pineconeVectorStore(ctx context.Context, log *logger.Logger, pc pinecone.Client, cfg pinecone.StoreConfig) (vector.Store, error) {
	vs, err := pinecone.NewVectorStore(ctx, log, pc, cfg)
	if err != nil {
		return nil, err
	}
	return vs, nil
}

type VectorProviderBootstrapErrorCode string

const (
	VectorProviderBootstrapErrorInvalidProvider     VectorProviderBootstrapErrorCode = "invalid_provider"
	VectorProviderBootstrapErrorMissingQdrantURL    VectorProviderBootstrapErrorCode = "missing_qdrant_url"
	VectorProviderBootstrapErrorInvalidQdrantURL    VectorProviderBootstrapErrorCode = "invalid_qdrant_url"
	VectorProviderBootstrapErrorMissingQdrantColl   VectorProviderBootstrapErrorCode = "missing_qdrant_collection"
	VectorProviderBootstrapErrorInvalidQdrantVector VectorProviderBootstrapErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderBootstrapErrorMissingAPIKey       VectorProviderBootstrapErrorCode = "missing_api_key"
	VectorProviderBootstrapErrorConnectFailed       VectorProviderBootstrapErrorCode = "connect_failed"
	VectorProviderBootstrapErrorProviderInitFailed  VectorProviderBootstrapErrorCode = "provider_init_failed"
)

type VectorProviderBootstrapError struct {
	Code     VectorProviderBootstrapErrorCode
	Provider string
	Cause    error
}

func (e *VectorProviderBootstrapError) Error() string {
	if e == nil {
		return "vector provider bootstrap failed"
	}
	return fmt.Sprintf("vector provider bootstrap failed (code=%s provider=%q): %v", e.Code, e.Provider, e.Cause)
}

func (e *VectorProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the configured search backend wrapped with metrics.
func resolveVectorStore(ctx context.Context, log *logger.Logger, cfg Config, metrics *observability.Metrics) (vector.Store, error) {
	provider := cfg.Vector.Provider

	switch provider {
	case vector.ProviderQdrant:
		qcfg, err := resolveQdrantConfig()
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		if p := strings.TrimSpace(cfg.Vector.NamespacePrefix); p != "" {
			qcfg.NamespacePrefix = p
		}
		if qcfg.Timeout <= 0 {
			qcfg.Timeout = cfg.Generation.CallTimeout
		}
		log.Info("Selecting vector store provider",
			"provider", provider,
			"qdrant_url", qcfg.URL,
			"qdrant_collection", qcfg.Collection,
			"qdrant_namespace_prefix", qcfg.NamespacePrefix,
			"qdrant_vector_dim", qcfg.VectorDim,
		)
		vs, err := newQdrantVectorStore(log, qcfg)
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		return instrumentVectorStore(provider, vs, metrics), nil

	case vector.ProviderPinecone:
		log.Info("Selecting vector store provider",
			"provider", provider,
			"pinecone_index_name", cfg.Vector.PineconeIndexName,
			"pinecone_index_host", cfg.Vector.PineconeIndexHost,
		)
		if strings.TrimSpace(cfg.Vector.PineconeAPIKey) == "" {
			return nil, bootstrapFailed(log, provider, &VectorProviderBootstrapError{
				Code:     VectorProviderBootstrapErrorMissingAPIKey,
				Provider: provider,
				Cause:    errors.New("PINECONE_API_KEY is required"),
			})
		}
		pc, err := newPineconeClient(log, pinecone.Config{
			APIKey:  cfg.Vector.PineconeAPIKey,
			BaseURL: cfg.Vector.PineconeBaseURL,
			Timeout: 30 * time.Second,
		})
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		vs, err := newPineconeVectorStore(ctx, log, pc, pinecone.StoreConfig{
			IndexName:       cfg.Vector.PineconeIndexName,
			IndexHost:       cfg.Vector.PineconeIndexHost,
			NamespacePrefix: cfg.Vector.NamespacePrefix,
		})
		if err != nil {
			return nil, bootstrapFailed(log, provider, err)
		}
		return instrumentVectorStore(provider, vs, metrics), nil

	default:
		return nil, bootstrapFailed(log, provider, &VectorProviderBootstrapError{
			Code:     VectorProviderBootstrapErrorInvalidProvider,
			Provider: provider,
			Cause:    fmt.Errorf("unsupported vector provider %q", provider),
		})
	}
}

func bootstrapFailed(log *logger.Logger, provider string, err error) error {
	classified := classifyVectorProviderBootstrapError(provider, err)
	log.Error("Vector store provider bootstrap failed",
		"provider", provider,
		"error_code", vectorProviderBootstrapErrorCode(classified),
		"error", classified,
	)
	return classified
}

func classifyVectorProviderBootstrapError(provider string, err error) error {
	var existing *VectorProviderBootstrapError
	if errors.As(err, &existing) {
		return err
	}
	wrap := func(code VectorProviderBootstrapErrorCode) error {
		return &VectorProviderBootstrapError{Code: code, Provider: provider, Cause: err}
	}

	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}
	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return wrap(VectorProviderBootstrapErrorConnectFailed)
	}

	var cfgErr *qdrant.ConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case qdrant.ConfigErrorMissingURL:
			return wrap(VectorProviderBootstrapErrorMissingQdrantURL)
		case qdrant.ConfigErrorInvalidURL:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantURL)
		case qdrant.ConfigErrorMissingCollection:
			return wrap(VectorProviderBootstrapErrorMissingQdrantColl)
		case qdrant.ConfigErrorInvalidVectorDim:
			return wrap(VectorProviderBootstrapErrorInvalidQdrantVector)
		}
	}
	return wrap(VectorProviderBootstrapErrorProviderInitFailed)
}

func vectorProviderBootstrapErrorCode(err error) VectorProviderBootstrapErrorCode {
	var bootstrapErr *VectorProviderBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorProviderBootstrapErrorConnectFailed
}
