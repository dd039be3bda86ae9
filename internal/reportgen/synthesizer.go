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

type Synthesizer struct {
	log       *logger.Logger
	completer Completer
	prompt    *Prompt
	timeout   time.Duration
}

func NewSynthesizer(log *logger.Logger, completer Completer, prompts *Prompts, timeout time.Duration) *Synthesizer {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Synthesizer{
		log:       log.With("service", "ReportSynthesizer"),
		completer: completer,
		prompt:    prompts.Get(PromptReportSynthesis),
		timeout:   timeout,
	}
}

type synthesisPromptInput struct {
	CustomPrompt string
	Sections     []synthesisPromptSection
}

type synthesisPromptSection struct {
	Title  string
	Body   string
	Failed bool
}

// Synthesize merges all section results, failed ones included, into one markdown report.
// Any error is fatal to the generation attempt.
func (s *Synthesizer) Synthesize(ctx context.Context, customPrompt string, results []reports.SectionResult) (string, error) {
	in := synthesisPromptInput{
		CustomPrompt: strings.TrimSpace(customPrompt),
		Sections:     make([]synthesisPromptSection, 0, len(results)),
	}
	for _, r := range results {
		title := strings.TrimSpace(r.SectionTitle)
		if title == "" {
			title = r.SectionID
		}
		sec := synthesisPromptSection{Title: title, Body: r.Analysis}
		if r.Failed() {
			sec.Body = r.Error
			sec.Failed = true
		}
		in.Sections = append(in.Sections, sec)
	}
	req, err := s.prompt.Render(in)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := time.Now()
	res, err := s.completer.Complete(callCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrSynthesisTimeout, s.timeout)
		}
		return "", fmt.Errorf("synthesis call failed: %w", err)
	}

	markdown, err := ExtractMarkdown(res)
	if err != nil {
		s.log.WithTrace(ctx).Warn("synthesis reply unusable", "raw_len", len(res.RawText), "elapsed", time.Since(started).String())
		return "", err
	}
	return markdown, nil
}

// ExtractMarkdown accepts a structured markdown/text field, a fenced JSON block carrying one,
// or a fenced markdown block.
func ExtractMarkdown(res CompletionResult) (string, error) {
	decoded := Decode(res)
	if md, ok := decoded.StringField("markdown", "text"); ok {
		return strings.TrimSpace(md), nil
	}
	if md, ok := fencedMarkdown(res.RawText); ok {
		return md, nil
	}
	return "", ErrSynthesisFormat
}
