// Package vector defines the provider-neutral surface the document gateway searches through.
package vector

import "context"

// Store is implemented by the qdrant and pinecone adapters.
// Namespaces partition one physical index per document collection.
type Store interface {
	Upsert(ctx context.Context, namespace string, points []Point) error
	// Query returns matches in the provider's order (descending score, provider tie-breaking).
	Query(ctx context.Context, namespace string, q []float32, topK int) ([]Match, error)
}

type Point struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Provider names accepted by configuration.
const (
	ProviderQdrant   = "qdrant"
	ProviderPinecone = "pinecone"
)
