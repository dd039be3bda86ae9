package reportgen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	repos "github.com/yungbote/research-reports/internal/data/repos/reports"
	"github.com/yungbote/research-reports/internal/data/repos/testutil"
	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/pkg/dbctx"
	"github.com/yungbote/research-reports/internal/platform/vector"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{float32(len(inputs[i])), 1}
	}
	return out, nil
}

type fakeVectors struct {
	matches   []vector.Match
	queryErr  error
	namespace string
	topK      int
	upserts   map[string][]vector.Point
}

func (f *fakeVectors) Upsert(ctx context.Context, namespace string, points []vector.Point) error {
	if f.upserts == nil {
		f.upserts = map[string][]vector.Point{}
	}
	f.upserts[namespace] = append(f.upserts[namespace], points...)
	return nil
}

func (f *fakeVectors) Query(ctx context.Context, namespace string, q []float32, topK int) ([]vector.Match, error) {
	f.namespace, f.topK = namespace, topK
	return f.matches, f.queryErr
}

func seedDocuments(t *testing.T, repo repos.DocumentRepo, collection string, n int) []*reports.Document {
	t.Helper()
	docs := make([]*reports.Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, &reports.Document{
			CollectionID: collection,
			Title:        "Ticket " + string(rune('A'+i)),
			Content:      "The customer could not log in.",
			Metadata:     datatypes.JSON(`{"channel":"email"}`),
		})
	}
	created, err := repo.Create(dbctx.New(context.Background()), docs)
	require.NoError(t, err)
	return created
}

func newTestGateway(t *testing.T, emb *fakeEmbedder, vs *fakeVectors) (*Gateway, repos.DocumentRepo) {
	t.Helper()
	db := testutil.SQLite(t)
	docRepo := repos.NewDocumentRepo(db, testutil.Logger(t))
	return NewGateway(testutil.Logger(t), emb, vs, docRepo, time.Second), docRepo
}

func TestGatewaySearchKeepsBackendOrder(t *testing.T) {
	vs := &fakeVectors{matches: []vector.Match{
		{ID: "doc-2", Score: 0.71, Metadata: map[string]any{"excerpt": "second", "title": "B"}},
		{ID: "doc-1", Score: 0.93, Metadata: map[string]any{"excerpt": "first"}},
	}}
	g, docRepo := newTestGateway(t, &fakeEmbedder{}, vs)
	seedDocuments(t, docRepo, "support", 1)

	hits, err := g.Search(context.Background(), "support", "login failures", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-2", hits[0].DocumentRef)
	assert.Equal(t, "second", hits[0].Excerpt)
	assert.Equal(t, "B", hits[0].Metadata["title"])
	assert.NotContains(t, hits[0].Metadata, "excerpt")
	assert.InDelta(t, 0.93, hits[1].RelevanceScore, 1e-9)
	assert.Equal(t, "support", vs.namespace)
	assert.Equal(t, 5, vs.topK)
}

func TestGatewaySearchRejectsUnknownCollection(t *testing.T) {
	emb := &fakeEmbedder{}
	g, _ := newTestGateway(t, emb, &fakeVectors{})

	_, err := g.Search(context.Background(), "nope", "q", 5)
	assert.ErrorIs(t, err, ErrInvalidCollection)
	_, err = g.Search(context.Background(), "", "q", 5)
	assert.ErrorIs(t, err, ErrInvalidCollection)
	assert.Zero(t, emb.calls)
}

func TestGatewaySearchUnavailable(t *testing.T) {
	g, docRepo := newTestGateway(t, &fakeEmbedder{}, &fakeVectors{queryErr: errors.New("connection refused")})
	seedDocuments(t, docRepo, "support", 1)
	_, err := g.Search(context.Background(), "support", "q", 5)
	assert.ErrorIs(t, err, ErrSearchUnavailable)

}

func TestGatewayEmbedFailureIsSearchUnavailable(t *testing.T) {
	vs := &fakeVectors{}
	g, docRepo := newTestGateway(t, &fakeEmbedder{err: errors.New("quota")}, vs)
	seedDocuments(t, docRepo, "support", 1)
	_, err := g.Search(context.Background(), "support", "q", 5)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	assert.Empty(t, vs.namespace)
}

func TestGatewayFetchDocument(t *testing.T) {
	g, docRepo := newTestGateway(t, &fakeEmbedder{}, &fakeVectors{})
	docs := seedDocuments(t, docRepo, "support", 1)

	got, err := g.FetchDocument(context.Background(), docs[0].ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Ticket A", got.Title)

	_, err = g.FetchDocument(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = g.FetchDocument(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestGatewayIndexCollection(t *testing.T) {
	vs := &fakeVectors{}
	g, docRepo := newTestGateway(t, &fakeEmbedder{}, vs)
	docs := seedDocuments(t, docRepo, "support", 3)
	seedDocuments(t, docRepo, "other", 2)

	n, err := g.IndexCollection(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, vs.upserts["support"], 3)
	assert.Empty(t, vs.upserts["other"])

	ids := map[string]bool{}
	for _, p := range vs.upserts["support"] {
		ids[p.ID] = true
		assert.Equal(t, "support", p.Metadata["collection_id"])
		assert.Equal(t, "email", p.Metadata["channel"])
		assert.NotEmpty(t, p.Metadata["excerpt"])
	}
	for _, d := range docs {
		assert.True(t, ids[d.ID.String()])
	}
}
