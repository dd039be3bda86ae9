package reportgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	repos "github.com/yungbote/research-reports/internal/data/repos/reports"
	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/pkg/dbctx"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

// DocumentStore is semantic search over a collection plus lookup of full documents.
type DocumentStore interface {
	// Search returns hits by descending relevance exactly as the backend ordered them.
	Search(ctx context.Context, collectionID, queryText string, topK int) ([]reports.SearchHit, error)
	FetchDocument(ctx context.Context, documentID string) (*reports.Document, error)
	ValidateCollection(ctx context.Context, collectionID string) error
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

const (
	excerptChars      = 500
	indexBatchSize    = 64
	metaTitleKey      = "title"
	metaExcerptKey    = "excerpt"
	metaCollectionKey = "collection_id"
)

// Gateway backs DocumentStore with a vector store for search and the document table for bodies.
// Each vector namespace is one collection id.
type Gateway struct {
	log         *logger.Logger
	embedder    Embedder
	store       vector.Store
	docs        repos.DocumentRepo
	callTimeout time.Duration

	known sync.Map // collection id -> struct{}
}

var _ DocumentStore = (*Gateway)(nil)

func NewGateway(log *logger.Logger, embedder Embedder, store vector.Store, docs repos.DocumentRepo, callTimeout time.Duration) *Gateway {
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Gateway{
		log:         log.With("service", "DocumentGateway"),
		embedder:    embedder,
		store:       store,
		docs:        docs,
		callTimeout: callTimeout,
	}
}

func (g *Gateway) Search(ctx context.Context, collectionID, queryText string, topK int) ([]reports.SearchHit, error) {
	if err := g.ValidateCollection(ctx, collectionID); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	embedCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	vecs, err := g.embedder.Embed(embedCtx, []string{queryText})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrSearchUnavailable, err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("%w: embed query returned no vector", ErrSearchUnavailable)
	}

	queryCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	matches, err := g.store.Query(queryCtx, collectionID, vecs[0], topK)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	hits := make([]reports.SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, toSearchHit(m))
	}
	return hits, nil
}

func (g *Gateway) FetchDocument(ctx context.Context, documentID string) (*reports.Document, error) {
	id, err := uuid.Parse(strings.TrimSpace(documentID))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, documentID)
	}
	fetchCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	doc, err := g.docs.GetByID(dbctx.New(fetchCtx), id)
	if err != nil {
		return nil, Persistence("fetch document", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return doc, nil
}

// ValidateCollection fails with ErrInvalidCollection for an empty or unknown collection id.
// Known ids are remembered for the life of the gateway.
func (g *Gateway) ValidateCollection(ctx context.Context, collectionID string) error {
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return fmt.Errorf("%w: collection id is required", ErrInvalidCollection)
	}
	if _, ok := g.known.Load(collectionID); ok {
		return nil
	}
	checkCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	ok, err := g.docs.CollectionExists(dbctx.New(checkCtx), collectionID)
	if err != nil {
		return Persistence("validate collection", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, collectionID)
	}
	g.known.Store(collectionID, struct{}{})
	return nil
}

// IndexCollection embeds every document of a collection into the vector store.
func (g *Gateway) IndexCollection(ctx context.Context, collectionID string) (int, error) {
	if err := g.ValidateCollection(ctx, collectionID); err != nil {
		return 0, err
	}
	total := 0
	after := uuid.Nil
	for {
		page, err := g.docs.ListByCollection(dbctx.New(ctx), collectionID, after, indexBatchSize)
		if err != nil {
			return total, Persistence("list documents", err)
		}
		if len(page) == 0 {
			return total, nil
		}
		inputs := make([]string, 0, len(page))
		for _, d := range page {
			inputs = append(inputs, strings.TrimSpace(d.Title+"\n\n"+d.Content))
		}
		embedCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		vecs, err := g.embedder.Embed(embedCtx, inputs)
		cancel()
		if err != nil {
			return total, fmt.Errorf("embed documents: %w", err)
		}
		if len(vecs) != len(page) {
			return total, fmt.Errorf("embed documents: got %d vectors for %d documents", len(vecs), len(page))
		}
		points := make([]vector.Point, 0, len(page))
		for i, d := range page {
			points = append(points, vector.Point{ID: d.ID.String(), Values: vecs[i], Metadata: indexMetadata(d)})
		}
		upsertCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
		err = g.store.Upsert(upsertCtx, collectionID, points)
		cancel()
		if err != nil {
			return total, fmt.Errorf("upsert vectors: %w", err)
		}
		total += len(page)
		after = page[len(page)-1].ID
		g.log.Info("indexed documents", "collection_id", collectionID, "batch", len(page), "total", total)
	}
}

func toSearchHit(m vector.Match) reports.SearchHit {
	meta := make(map[string]any, len(m.Metadata))
	excerpt := ""
	for k, v := range m.Metadata {
		if k == metaExcerptKey {
			if s, ok := v.(string); ok {
				excerpt = s
				continue
			}
		}
		meta[k] = v
	}
	return reports.SearchHit{
		DocumentRef:    m.ID,
		Excerpt:        excerpt,
		RelevanceScore: m.Score,
		Metadata:       meta,
	}
}

func indexMetadata(d *reports.Document) map[string]any {
	meta := documentMetadata(d)
	meta[metaTitleKey] = d.Title
	meta[metaCollectionKey] = d.CollectionID
	meta[metaExcerptKey] = truncateRunes(d.Content, excerptChars)
	return meta
}

// documentMetadata decodes the jsonb metadata column; non-object values yield an empty map.
func documentMetadata(d *reports.Document) map[string]any {
	out := map[string]any{}
	if d == nil || len(d.Metadata) == 0 {
		return out
	}
	if err := json.Unmarshal(d.Metadata, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func isDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}
