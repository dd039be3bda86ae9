package reportgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

var pricing = reports.Section{ID: "s1", Title: "Pricing", Description: "How customers react to pricing", FocusAreas: []string{"refunds", "discounts"}}

func newProcessor(store DocumentStore, c Completer, timeout time.Duration) *SectionProcessor {
	return NewSectionProcessor(logger.Nop(), store, c, mustPrompts(), SectionProcessorConfig{Timeout: timeout})
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "Pricing How customers react to pricing refunds, discounts", BuildQuery(pricing))
	assert.Equal(t, "Only title", BuildQuery(reports.Section{Title: "Only title", FocusAreas: nil}))
}

func TestProcessSectionAnalyzesHydratedDocuments(t *testing.T) {
	store := newFakeStore()
	q := BuildQuery(pricing)
	for i := 0; i < 3; i++ {
		id := store.addDoc(fmt.Sprintf("Ticket %d", i), "customer asked for refund")
		store.hits[q] = append(store.hits[q], reports.SearchHit{DocumentRef: id, RelevanceScore: 0.9 - float64(i)/10})
	}
	var prompt string
	c := completerFunc(func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		prompt = req.Prompt
		assert.Nil(t, req.Shape)
		return CompletionResult{RawText: "  Refund requests dominate.  "}, nil
	})

	out := newProcessor(store, c, time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.Equal(t, "s1", out.Result.SectionID)
	assert.Equal(t, "Pricing", out.Result.SectionTitle)
	assert.Equal(t, "Refund requests dominate.", out.Result.Analysis)
	assert.Empty(t, out.Result.Error)
	require.Len(t, out.Result.Documents, 3)
	assert.Equal(t, "Ticket 0", out.Result.Documents[0].Title)
	assert.InDelta(t, 0.9, out.Result.Documents[0].SimilarityScore, 1e-9)
	assert.Len(t, out.Search.Hits, 3)
	assert.Equal(t, q, out.Search.Query)

	assert.Contains(t, prompt, "Focus areas: refunds, discounts")
	assert.Contains(t, prompt, "[1] Ticket 0")
	assert.Contains(t, prompt, "[3] Ticket 2")
}

func TestProcessSectionAcceptsStructuredAnalysis(t *testing.T) {
	store := newFakeStore()
	id := store.addDoc("Doc", "body")
	store.hits[BuildQuery(pricing)] = []reports.SearchHit{{DocumentRef: id, RelevanceScore: 0.5}}
	c := completerFunc(func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		return CompletionResult{Structured: map[string]any{"analysis": "Structured body"}}, nil
	})
	out := newProcessor(store, c, time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.Equal(t, "Structured body", out.Result.Analysis)
}

func TestProcessSectionSkipsMissingDocuments(t *testing.T) {
	store := newFakeStore()
	id := store.addDoc("Present", "body")
	store.hits[BuildQuery(pricing)] = []reports.SearchHit{
		{DocumentRef: "00000000-0000-0000-0000-000000000001", RelevanceScore: 0.9},
		{DocumentRef: id, RelevanceScore: 0.8},
	}
	out := newProcessor(store, textReply("ok"), time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.Equal(t, "ok", out.Result.Analysis)
	require.Len(t, out.Result.Documents, 1)
	assert.Equal(t, "Present", out.Result.Documents[0].Title)
	assert.Len(t, store.fetched, 2)
}

func TestProcessSectionNoEvidenceIsNotAnError(t *testing.T) {
	store := newFakeStore()
	store.hits[BuildQuery(pricing)] = []reports.SearchHit{{DocumentRef: "missing"}}
	called := false
	c := completerFunc(func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		called = true
		return CompletionResult{}, nil
	})
	out := newProcessor(store, c, time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.False(t, called)
	assert.Equal(t, NoRelevantDocumentsMessage, out.Result.Analysis)
	assert.Empty(t, out.Result.Error)
	assert.NotNil(t, out.Result.Documents)
	assert.Empty(t, out.Result.Documents)
}

func TestProcessSectionSearchFailureIsContained(t *testing.T) {
	store := newFakeStore()
	store.searchErr[BuildQuery(pricing)] = fmt.Errorf("%w: connection refused", ErrSearchUnavailable)
	out := newProcessor(store, textReply("unused"), time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.Empty(t, out.Result.Analysis)
	assert.Contains(t, out.Result.Error, `"Pricing"`)
	assert.Contains(t, out.Result.Error, "search unavailable")
	assert.Contains(t, out.Search.Error, "connection refused")
	assert.Empty(t, out.Result.Documents)
}

func TestProcessSectionAnalysisTimeoutKeepsDocuments(t *testing.T) {
	store := newFakeStore()
	id := store.addDoc("Doc", "body")
	store.hits[BuildQuery(pricing)] = []reports.SearchHit{{DocumentRef: id, RelevanceScore: 0.5}}

	out := newProcessor(store, blockUntilDone(), 20*time.Millisecond).ProcessSection(context.Background(), "support", pricing)
	assert.Empty(t, out.Result.Analysis)
	assert.Contains(t, out.Result.Error, "timed out")
	require.Len(t, out.Result.Documents, 1)
}

func TestProcessSectionEmptyReplyIsAnError(t *testing.T) {
	store := newFakeStore()
	id := store.addDoc("Doc", "body")
	store.hits[BuildQuery(pricing)] = []reports.SearchHit{{DocumentRef: id}}
	out := newProcessor(store, textReply("   "), time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.Empty(t, out.Result.Analysis)
	assert.True(t, strings.Contains(out.Result.Error, "empty analysis"))
}

func TestProcessSectionRecoversFromPanics(t *testing.T) {
	store := newFakeStore()
	id := store.addDoc("Doc", "body")
	store.hits[BuildQuery(pricing)] = []reports.SearchHit{{DocumentRef: id}}
	c := completerFunc(func(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
		panic(errors.New("provider bug"))
	})
	out := newProcessor(store, c, time.Second).ProcessSection(context.Background(), "support", pricing)
	assert.Contains(t, out.Result.Error, "provider bug")
	assert.Empty(t, out.Result.Analysis)
}
