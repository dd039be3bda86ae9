package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/research-reports/internal/data/graph"
	repos "github.com/yungbote/research-reports/internal/data/repos/reports"
	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/observability"
	"github.com/yungbote/research-reports/internal/pkg/dbctx"
	"github.com/yungbote/research-reports/internal/platform/logger"
	"github.com/yungbote/research-reports/internal/platform/neo4jdb"
	"github.com/yungbote/research-reports/internal/realtime"
	"github.com/yungbote/research-reports/internal/realtime/bus"
	"github.com/yungbote/research-reports/internal/reportgen"
)

// CancelledMessage is the terminal error recorded for a cancelled generation attempt.
const CancelledMessage = "generation cancelled"

type SectionProcessor interface {
	ProcessSection(ctx context.Context, collectionID string, section reports.Section) reportgen.SectionOutcome
}

type ReportSynthesizer interface {
	Synthesize(ctx context.Context, customPrompt string, results []reports.SectionResult) (string, error)
}

type PromptAnalyzer interface {
	Analyze(ctx context.Context, prompt string) ([]reports.Variation, error)
}

type CollectionValidator interface {
	ValidateCollection(ctx context.Context, collectionID string) error
}

type CreateReportInput struct {
	ParentID       uuid.UUID         `json:"parent_id"`
	CollectionID   string            `json:"collection_id"`
	Name           string            `json:"name"`
	CustomPrompt   string            `json:"custom_prompt"`
	SectionOutline []reports.Section `json:"section_outline"`
}

// UpdateReportInput carries only the fields being changed; nil means untouched.
type UpdateReportInput struct {
	Name           *string            `json:"name"`
	CustomPrompt   *string            `json:"custom_prompt"`
	SectionOutline *[]reports.Section `json:"section_outline"`
}

// GenerateReportInput is the configuration the client is generating with. Nil fields fall back
// to what is stored on the report.
type GenerateReportInput = UpdateReportInput

type PromptAnalysis struct {
	Variations     []reports.Variation `json:"variations"`
	SectionOutline []reports.Section   `json:"section_outline"`
}

// RelatedDocument is one document surfaced by any section search of a report.
type RelatedDocument struct {
	DocumentRef    string         `json:"document_ref"`
	Excerpt        string         `json:"excerpt,omitempty"`
	RelevanceScore float64        `json:"relevance_score"`
	SectionIDs     []string       `json:"section_ids"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ReportService interface {
	Create(ctx context.Context, in CreateReportInput) (*reports.Report, error)
	Get(ctx context.Context, id uuid.UUID) (*reports.Report, error)
	List(ctx context.Context, parentID uuid.UUID) ([]*reports.Report, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateReportInput) (*reports.Report, error)
	AnalyzePrompt(ctx context.Context, id uuid.UUID, customPrompt string) (*PromptAnalysis, error)
	Generate(ctx context.Context, id uuid.UUID, in GenerateReportInput) (*reports.Report, error)
	Cancel(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RelatedDocuments(ctx context.Context, id uuid.UUID) ([]RelatedDocument, error)
}

type ReportServiceConfig struct {
	SectionConcurrency int
	// A generating report whose run started before now-StaleAfter may be reclaimed.
	StaleAfter time.Duration
	// Deadline for the terminal write, which outlives a cancelled request.
	FinalizeTimeout time.Duration
	EventTimeout    time.Duration
}

type reportService struct {
	log         *logger.Logger
	reports     repos.ReportRepo
	collections CollectionValidator
	sections    SectionProcessor
	synthesizer ReportSynthesizer
	analyzer    PromptAnalyzer
	events      bus.Bus
	graph       *neo4jdb.Client
	metrics     *observability.Metrics
	cfg         ReportServiceConfig
	runs        *runRegistry
	now         func() time.Time
}

// NewReportService wires the lifecycle manager. events, graphClient and metrics may be nil.
func NewReportService(
	log *logger.Logger,
	reportRepo repos.ReportRepo,
	collections CollectionValidator,
	sections SectionProcessor,
	synthesizer ReportSynthesizer,
	analyzer PromptAnalyzer,
	events bus.Bus,
	graphClient *neo4jdb.Client,
	metrics *observability.Metrics,
	cfg ReportServiceConfig,
) ReportService {
	if cfg.SectionConcurrency <= 0 {
		cfg.SectionConcurrency = 4
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 15 * time.Second
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 2 * time.Second
	}
	return &reportService{
		log:         log.With("service", "ReportService"),
		reports:     reportRepo,
		collections: collections,
		sections:    sections,
		synthesizer: synthesizer,
		analyzer:    analyzer,
		events:      events,
		graph:       graphClient,
		metrics:     metrics,
		cfg:         cfg,
		runs:        newRunRegistry(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *reportService) Create(ctx context.Context, in CreateReportInput) (*reports.Report, error) {
	name := strings.TrimSpace(in.Name)
	collectionID := strings.TrimSpace(in.CollectionID)
	switch {
	case in.ParentID == uuid.Nil:
		return nil, fmt.Errorf("%w: parent_id is required", reportgen.ErrInvalidConfiguration)
	case name == "":
		return nil, fmt.Errorf("%w: name is required", reportgen.ErrInvalidConfiguration)
	case collectionID == "":
		return nil, fmt.Errorf("%w: collection_id is required", reportgen.ErrInvalidConfiguration)
	}
	r := &reports.Report{
		ParentID:       in.ParentID,
		CollectionID:   collectionID,
		Name:           name,
		Status:         reports.StatusConfiguring,
		CustomPrompt:   strings.TrimSpace(in.CustomPrompt),
		SectionOutline: reports.JSON(in.SectionOutline),
		SectionResults: reports.JSON[reports.SectionResult](nil),
		SearchTrace:    reports.JSON[reports.SectionSearch](nil),
		Version:        1,
	}
	created, err := s.reports.Create(dbctx.New(ctx), r)
	if err != nil {
		return nil, reportgen.Persistence("create report", err)
	}
	s.log.WithTrace(ctx).Info("report created", "report_id", created.ID, "collection_id", collectionID)
	return created, nil
}

func (s *reportService) Get(ctx context.Context, id uuid.UUID) (*reports.Report, error) {
	r, err := s.reports.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, reportgen.Persistence("get report", err)
	}
	if r == nil {
		return nil, reportgen.ErrReportNotFound
	}
	return r, nil
}

func (s *reportService) List(ctx context.Context, parentID uuid.UUID) ([]*reports.Report, error) {
	if parentID == uuid.Nil {
		return nil, fmt.Errorf("%w: parent_id is required", reportgen.ErrInvalidConfiguration)
	}
	out, err := s.reports.ListByParent(dbctx.New(ctx), parentID)
	if err != nil {
		return nil, reportgen.Persistence("list reports", err)
	}
	return out, nil
}

// Update applies only the fields that differ from the stored report. An update that changes
// nothing performs no write and keeps the version.
func (s *reportService) Update(ctx context.Context, id uuid.UUID, in UpdateReportInput) (*reports.Report, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	diff, err := diffConfig(current, in)
	if err != nil {
		return nil, err
	}
	if len(diff.updates) == 0 {
		return current, nil
	}
	diff.updates["version"] = gorm.Expr("version + ?", 1)

	dbc := dbctx.New(ctx)
	if diff.touchesGeneration {
		ok, err := s.reports.UpdateFieldsUnlessStatus(dbc, id, []string{reports.StatusGenerating}, diff.updates)
		if err != nil {
			return nil, reportgen.Persistence("update report", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: prompt and outline cannot change while generating", reportgen.ErrGenerationInProgress)
		}
	} else if err := s.reports.UpdateFields(dbc, id, diff.updates); err != nil {
		return nil, reportgen.Persistence("update report", err)
	}
	return s.Get(ctx, id)
}

func (s *reportService) AnalyzePrompt(ctx context.Context, id uuid.UUID, customPrompt string) (*PromptAnalysis, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(customPrompt)
	if prompt == "" {
		prompt = r.CustomPrompt
	}
	variations, err := s.analyzer.Analyze(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &PromptAnalysis{Variations: variations, SectionOutline: reportgen.BuildOutline(variations)}, nil
}

// Generate runs one generation attempt to its terminal state and returns the stored report.
// Section failures are recorded on the report; synthesis failure and an unknown collection
// end in status error without an error return. Cancellation and persistence failures are
// returned as errors.
func (s *reportService) Generate(ctx context.Context, id uuid.UUID, in GenerateReportInput) (*reports.Report, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name, prompt, outline, err := effectiveConfig(current, in)
	if err != nil {
		return nil, err
	}

	runID := uuid.New()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.runs.claim(id, runID, cancel) {
		return nil, reportgen.ErrGenerationInProgress
	}
	defer s.runs.release(id, runID)

	started := s.now()
	claimed, err := s.reports.BeginRun(dbctx.New(ctx), id, runID, started.Add(-s.cfg.StaleAfter), map[string]interface{}{
		"name":                  name,
		"custom_prompt":         prompt,
		"section_outline":       reports.JSON(outline),
		"error":                 "",
		"generation_started_at": started,
	})
	if err != nil {
		return nil, reportgen.Persistence("begin generation", err)
	}
	if !claimed {
		return nil, reportgen.ErrGenerationInProgress
	}

	log := s.log.WithTrace(ctx).With("report_id", id, "run_id", runID)
	log.Info("report generation started", "sections", len(outline), "collection_id", current.CollectionID)
	s.metrics.GenerationStarted()
	defer s.metrics.GenerationFinished()
	s.publish(ctx, id, realtime.EventGenerationStarted, map[string]any{"sections": len(outline)})

	spanCtx, span := observability.StartSpan(runCtx, "report.generate",
		attribute.String("report.id", id.String()),
		attribute.Int("report.sections", len(outline)),
	)
	defer span.End()

	status, genErr := s.run(spanCtx, log, id, runID, current.CollectionID, prompt, outline)
	s.metrics.ObserveGeneration(status, s.now().Sub(started))
	if genErr != nil {
		span.RecordError(genErr)
		span.SetStatus(codes.Error, genErr.Error())
		return nil, genErr
	}
	span.SetAttributes(attribute.String("report.status", status))
	return s.Get(context.WithoutCancel(ctx), id)
}

// run performs the orchestration after the report was claimed and writes its terminal state.
func (s *reportService) run(ctx context.Context, log *logger.Logger, id, runID uuid.UUID, collectionID, prompt string, outline []reports.Section) (string, error) {
	if err := s.collections.ValidateCollection(ctx, collectionID); err != nil {
		if ctx.Err() != nil {
			return s.finishCancelled(ctx, log, id, runID)
		}
		log.Warn("generation preflight failed", "error", err)
		results, trace := splitOutcomes(reportgen.FailedOutcomes(outline, err))
		if ferr := s.finishError(ctx, id, runID, err.Error(), results, trace); ferr != nil {
			return reports.StatusError, ferr
		}
		if errors.Is(err, reportgen.ErrInvalidCollection) {
			return reports.StatusError, nil
		}
		return reports.StatusError, err
	}

	stageStart := s.now()
	outcomes := s.processSections(ctx, id, collectionID, outline)
	if ctx.Err() != nil {
		s.metrics.ObserveStage("sections", "cancelled", s.now().Sub(stageStart))
		return s.finishCancelled(ctx, log, id, runID)
	}
	s.metrics.ObserveStage("sections", "ok", s.now().Sub(stageStart))

	results, trace := splitOutcomes(outcomes)
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	stageStart = s.now()
	synthCtx, span := observability.StartSpan(ctx, "report.synthesize")
	content, err := s.synthesizer.Synthesize(synthCtx, prompt, results)
	span.End()
	if err != nil {
		if ctx.Err() != nil {
			s.metrics.ObserveStage("synthesis", "cancelled", s.now().Sub(stageStart))
			return s.finishCancelled(ctx, log, id, runID)
		}
		s.metrics.ObserveStage("synthesis", "error", s.now().Sub(stageStart))
		log.Warn("report synthesis failed", "error", err, "failed_sections", failed)
		if ferr := s.finishError(ctx, id, runID, "report synthesis failed: "+err.Error(), results, trace); ferr != nil {
			return reports.StatusError, ferr
		}
		return reports.StatusError, nil
	}
	s.metrics.ObserveStage("synthesis", "ok", s.now().Sub(stageStart))

	completedAt := s.now()
	ok, err := s.finish(ctx, id, runID, map[string]interface{}{
		"status":          reports.StatusCompleted,
		"content":         content,
		"section_results": reports.JSON(results),
		"search_trace":    reports.JSON(trace),
		"error":           "",
		"completed_at":    completedAt,
		"version":         gorm.Expr("version + ?", 1),
	})
	if err != nil {
		return reports.StatusCompleted, err
	}
	if !ok {
		return reports.StatusCompleted, fmt.Errorf("%w: run was superseded", reportgen.ErrGenerationCancelled)
	}
	log.Info("report generation completed", "failed_sections", failed, "content_chars", len(content))
	s.publish(ctx, id, realtime.EventReportCompleted, map[string]any{"status": reports.StatusCompleted, "failed_sections": failed})
	s.recordProvenance(ctx, log, id, outline, results)
	return reports.StatusCompleted, nil
}

// processSections fans sections out to the processor; outcomes keep outline order.
func (s *reportService) processSections(ctx context.Context, id uuid.UUID, collectionID string, outline []reports.Section) []reportgen.SectionOutcome {
	outcomes := make([]reportgen.SectionOutcome, len(outline))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SectionConcurrency)
	for i, section := range outline {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sctx, span := observability.StartSpan(gctx, "report.section",
				attribute.String("section.id", section.ID),
				attribute.Int("section.index", i),
			)
			out := s.sections.ProcessSection(sctx, collectionID, section)
			span.End()
			outcomes[i] = out
			s.metrics.IncSectionOutcome(sectionOutcomeLabel(out.Result))
			s.publish(gctx, id, realtime.EventSectionCompleted, map[string]any{
				"section_id": section.ID,
				"index":      i,
				"failed":     out.Result.Failed(),
			})
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func splitOutcomes(outcomes []reportgen.SectionOutcome) ([]reports.SectionResult, []reports.SectionSearch) {
	results := make([]reports.SectionResult, len(outcomes))
	trace := make([]reports.SectionSearch, len(outcomes))
	for i, o := range outcomes {
		results[i], trace[i] = o.Result, o.Search
	}
	return results, trace
}

func sectionOutcomeLabel(r reports.SectionResult) string {
	switch {
	case r.Failed():
		return "failed"
	case r.Analysis == reportgen.NoRelevantDocumentsMessage:
		return "no_documents"
	default:
		return "analyzed"
	}
}

// finishCancelled discards everything the attempt produced.
func (s *reportService) finishCancelled(ctx context.Context, log *logger.Logger, id, runID uuid.UUID) (string, error) {
	log.Info("report generation cancelled")
	if err := s.finishError(ctx, id, runID, CancelledMessage, []reports.SectionResult{}, []reports.SectionSearch{}); err != nil {
		return "cancelled", err
	}
	s.publish(ctx, id, realtime.EventReportCancelled, nil)
	return "cancelled", reportgen.ErrGenerationCancelled
}

// finishError moves the report to status error with the attempt's results and trace.
func (s *reportService) finishError(ctx context.Context, id, runID uuid.UUID, msg string, results []reports.SectionResult, trace []reports.SectionSearch) error {
	updates := map[string]interface{}{
		"status":          reports.StatusError,
		"error":           msg,
		"content":         nil,
		"completed_at":    nil,
		"section_results": reports.JSON(results),
		"search_trace":    reports.JSON(trace),
	}
	if _, err := s.finish(ctx, id, runID, updates); err != nil {
		return err
	}
	if msg != CancelledMessage {
		s.publish(ctx, id, realtime.EventReportFailed, map[string]any{"status": reports.StatusError, "error": msg})
	}
	return nil
}

// finish writes the terminal state under a context that survives cancellation of ctx.
func (s *reportService) finish(ctx context.Context, id, runID uuid.UUID, updates map[string]interface{}) (bool, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()
	ok, err := s.reports.FinishRun(dbctx.New(wctx), id, runID, updates)
	if err != nil {
		return false, reportgen.Persistence("finish generation", err)
	}
	if !ok {
		s.log.Warn("terminal write skipped; run no longer owns the report", "report_id", id, "run_id", runID)
	}
	return ok, nil
}

func (s *reportService) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return s.runs.cancel(id), nil
}

// Delete cancels a local in-flight run, then soft-deletes the report.
func (s *reportService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	s.runs.cancel(id)
	if err := s.reports.SoftDelete(dbctx.New(ctx), id); err != nil {
		return reportgen.Persistence("delete report", err)
	}
	return nil
}

// RelatedDocuments flattens the report's search trace, one entry per document with its best
// score, in order of first appearance.
func (s *reportService) RelatedDocuments(ctx context.Context, id uuid.UUID) ([]RelatedDocument, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	trace, err := r.Trace()
	if err != nil {
		return nil, fmt.Errorf("decode search trace: %w", err)
	}
	out := []RelatedDocument{}
	index := map[string]int{}
	for _, search := range trace {
		for _, hit := range search.Hits {
			ref := strings.TrimSpace(hit.DocumentRef)
			if ref == "" {
				continue
			}
			i, seen := index[ref]
			if !seen {
				index[ref] = len(out)
				out = append(out, RelatedDocument{
					DocumentRef:    ref,
					Excerpt:        hit.Excerpt,
					RelevanceScore: hit.RelevanceScore,
					SectionIDs:     []string{search.SectionID},
					Metadata:       hit.Metadata,
				})
				continue
			}
			doc := &out[i]
			if !slices.Contains(doc.SectionIDs, search.SectionID) {
				doc.SectionIDs = append(doc.SectionIDs, search.SectionID)
			}
			if hit.RelevanceScore > doc.RelevanceScore {
				doc.RelevanceScore = hit.RelevanceScore
				doc.Excerpt = hit.Excerpt
				doc.Metadata = hit.Metadata
			}
		}
	}
	return out, nil
}

func (s *reportService) publish(ctx context.Context, id uuid.UUID, event realtime.Event, data any) {
	if s.events == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.EventTimeout)
	defer cancel()
	msg := realtime.Message{Channel: realtime.ReportChannel(id), Event: event, Data: data}
	if err := s.events.Publish(pctx, msg); err != nil {
		s.log.Warn("report event publish failed", "report_id", id, "event", event, "error", err)
	}
}

func (s *reportService) recordProvenance(ctx context.Context, log *logger.Logger, id uuid.UUID, outline []reports.Section, results []reports.SectionResult) {
	if s.graph == nil {
		return
	}
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FinalizeTimeout)
	defer cancel()
	r, err := s.reports.GetByID(dbctx.New(gctx), id)
	if err != nil || r == nil {
		return
	}
	if err := graph.UpsertReportProvenance(gctx, s.graph, log, r, outline, results); err != nil {
		log.Warn("report provenance sync failed (continuing)", "error", err)
	}
}

type configDiff struct {
	updates           map[string]interface{}
	touchesGeneration bool
}

func diffConfig(current *reports.Report, in UpdateReportInput) (configDiff, error) {
	d := configDiff{updates: map[string]interface{}{}}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return d, fmt.Errorf("%w: name cannot be empty", reportgen.ErrInvalidConfiguration)
		}
		if name != current.Name {
			d.updates["name"] = name
		}
	}
	if in.CustomPrompt != nil {
		if p := strings.TrimSpace(*in.CustomPrompt); p != current.CustomPrompt {
			d.updates["custom_prompt"] = p
			d.touchesGeneration = true
		}
	}
	if in.SectionOutline != nil {
		stored, err := current.Outline()
		if err != nil {
			return d, fmt.Errorf("decode stored outline: %w", err)
		}
		if !sameOutline(stored, *in.SectionOutline) {
			d.updates["section_outline"] = reports.JSON(*in.SectionOutline)
			d.touchesGeneration = true
		}
	}
	return d, nil
}

func sameOutline(a, b []reports.Section) bool {
	return slices.EqualFunc(a, b, func(x, y reports.Section) bool {
		return x.ID == y.ID &&
			x.Title == y.Title &&
			x.Description == y.Description &&
			slices.Equal(x.FocusAreas, y.FocusAreas)
	})
}

// effectiveConfig merges the generate request over the stored report and validates the outline.
// Sections without an id get one; duplicate ids are rejected.
func effectiveConfig(current *reports.Report, in GenerateReportInput) (string, string, []reports.Section, error) {
	name := current.Name
	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		name = strings.TrimSpace(*in.Name)
	}
	prompt := current.CustomPrompt
	if in.CustomPrompt != nil {
		prompt = strings.TrimSpace(*in.CustomPrompt)
	}
	var outline []reports.Section
	if in.SectionOutline != nil {
		outline = slices.Clone(*in.SectionOutline)
	} else {
		stored, err := current.Outline()
		if err != nil {
			return "", "", nil, fmt.Errorf("%w: stored outline is unreadable", reportgen.ErrInvalidConfiguration)
		}
		outline = stored
	}
	if len(outline) == 0 {
		return "", "", nil, fmt.Errorf("%w: section outline is empty", reportgen.ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(outline))
	for i := range outline {
		if strings.TrimSpace(outline[i].ID) == "" {
			outline[i].ID = uuid.NewString()
		}
		if seen[outline[i].ID] {
			return "", "", nil, fmt.Errorf("%w: duplicate section id %q", reportgen.ErrInvalidConfiguration, outline[i].ID)
		}
		seen[outline[i].ID] = true
	}
	return name, prompt, outline, nil
}
