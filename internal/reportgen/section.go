package reportgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

const (
	DefaultTopK = 10

	// NoRelevantDocumentsMessage is the analysis recorded when nothing could be hydrated.
	NoRelevantDocumentsMessage = "No relevant documents were found for this section."

	defaultMaxDocumentChars = 6000
)

// SectionOutcome is what one section contributes to a report: its result and its search trace.
type SectionOutcome struct {
	Result reports.SectionResult
	Search reports.SectionSearch
}

// FailedOutcomes marks every section of outline as failed with err, keeping outline order.
func FailedOutcomes(outline []reports.Section, err error) []SectionOutcome {
	out := make([]SectionOutcome, len(outline))
	for i, section := range outline {
		out[i] = SectionOutcome{
			Result: reports.SectionResult{
				SectionID:    section.ID,
				SectionTitle: section.Title,
				Error:        sectionError(section.Title, err),
				Documents:    []reports.EvidenceDocument{},
			},
			Search: reports.SectionSearch{
				SectionID: section.ID,
				Query:     BuildQuery(section),
				Hits:      []reports.SearchHit{},
				Error:     err.Error(),
			},
		}
	}
	return out
}

type SectionProcessor struct {
	log              *logger.Logger
	docs             DocumentStore
	completer        Completer
	prompt           *Prompt
	timeout          time.Duration
	maxDocumentChars int
}

type SectionProcessorConfig struct {
	// Deadline for the analysis completion call.
	Timeout          time.Duration
	MaxDocumentChars int
}

func NewSectionProcessor(log *logger.Logger, docs DocumentStore, completer Completer, prompts *Prompts, cfg SectionProcessorConfig) *SectionProcessor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxDocumentChars <= 0 {
		cfg.MaxDocumentChars = defaultMaxDocumentChars
	}
	return &SectionProcessor{
		log:              log.With("service", "SectionProcessor"),
		docs:             docs,
		completer:        completer,
		prompt:           prompts.Get(PromptSectionAnalysis),
		timeout:          cfg.Timeout,
		maxDocumentChars: cfg.MaxDocumentChars,
	}
}

// BuildQuery concatenates title, description and the comma-joined focus areas.
func BuildQuery(section reports.Section) string {
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(section.Title); t != "" {
		parts = append(parts, t)
	}
	if d := strings.TrimSpace(section.Description); d != "" {
		parts = append(parts, d)
	}
	if len(section.FocusAreas) > 0 {
		parts = append(parts, strings.Join(section.FocusAreas, ", "))
	}
	return strings.Join(parts, " ")
}

// ProcessSection never returns an error: every failure lands in the result's Error field.
func (p *SectionProcessor) ProcessSection(ctx context.Context, collectionID string, section reports.Section) (out SectionOutcome) {
	log := p.log.WithTrace(ctx).With("section_id", section.ID)
	query := BuildQuery(section)
	out = SectionOutcome{
		Result: reports.SectionResult{
			SectionID:    section.ID,
			SectionTitle: section.Title,
			Documents:    []reports.EvidenceDocument{},
		},
		Search: reports.SectionSearch{SectionID: section.ID, Query: query, Hits: []reports.SearchHit{}},
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("section processing panicked", "panic", r)
			out.Result.Analysis = ""
			out.Result.Error = sectionError(section.Title, fmt.Errorf("internal error: %v", r))
		}
	}()

	hits, err := p.docs.Search(ctx, collectionID, query, DefaultTopK)
	if err != nil {
		log.Warn("section search failed", "error", err)
		out.Search.Error = err.Error()
		out.Result.Error = sectionError(section.Title, err)
		return out
	}
	out.Search.Hits = hits

	docs, err := p.hydrate(ctx, log, hits)
	out.Result.Documents = docs
	if err != nil {
		out.Result.Error = sectionError(section.Title, err)
		return out
	}
	if len(docs) == 0 {
		out.Result.Analysis = NoRelevantDocumentsMessage
		return out
	}

	analysis, err := p.analyze(ctx, section, docs)
	if err != nil {
		log.Warn("section analysis failed", "error", err, "documents", len(docs))
		out.Result.Error = sectionError(section.Title, err)
		return out
	}
	out.Result.Analysis = analysis
	return out
}

// hydrate resolves hits in order, skipping documents that no longer exist.
func (p *SectionProcessor) hydrate(ctx context.Context, log *logger.Logger, hits []reports.SearchHit) ([]reports.EvidenceDocument, error) {
	docs := make([]reports.EvidenceDocument, 0, len(hits))
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return docs, err
		}
		doc, err := p.docs.FetchDocument(ctx, hit.DocumentRef)
		if err != nil {
			if isDocumentNotFound(err) {
				log.Warn("search hit references a missing document; skipping", "document_ref", hit.DocumentRef)
				continue
			}
			return docs, fmt.Errorf("fetch document %s: %w", hit.DocumentRef, err)
		}
		docs = append(docs, reports.EvidenceDocument{
			ID:              doc.ID.String(),
			Title:           doc.Title,
			Content:         doc.Content,
			SimilarityScore: hit.RelevanceScore,
			Metadata:        documentMetadata(doc),
		})
	}
	return docs, nil
}

type sectionPromptInput struct {
	Title       string
	Description string
	FocusAreas  []string
	Documents   []sectionPromptDocument
}

type sectionPromptDocument struct {
	Number  int
	Title   string
	Content string
	Score   float64
}

func (p *SectionProcessor) analyze(ctx context.Context, section reports.Section, docs []reports.EvidenceDocument) (string, error) {
	in := sectionPromptInput{
		Title:       section.Title,
		Description: section.Description,
		FocusAreas:  section.FocusAreas,
		Documents:   make([]sectionPromptDocument, 0, len(docs)),
	}
	for i, d := range docs {
		in.Documents = append(in.Documents, sectionPromptDocument{
			Number:  i + 1,
			Title:   d.Title,
			Content: truncateRunes(d.Content, p.maxDocumentChars),
			Score:   d.SimilarityScore,
		})
	}
	req, err := p.prompt.Render(in)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	res, err := p.completer.Complete(callCtx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("analysis timed out after %s", p.timeout)
		}
		return "", err
	}

	decoded := Decode(res)
	if text, ok := decoded.StringField("analysis", "text"); ok {
		return strings.TrimSpace(text), nil
	}
	if text := strings.TrimSpace(res.RawText); text != "" {
		return text, nil
	}
	return "", errors.New("completion returned an empty analysis")
}
