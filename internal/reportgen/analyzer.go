package reportgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/research-reports/internal/domain/reports"
	"github.com/yungbote/research-reports/internal/platform/logger"
)

const (
	DefaultVariationCount = 4

	OverviewSectionTitle   = "Overview and Methodology"
	ConclusionSectionTitle = "Conclusions and Recommendations"
)

type PromptAnalyzer struct {
	log       *logger.Logger
	completer Completer
	prompt    *Prompt
	timeout   time.Duration
}

func NewPromptAnalyzer(log *logger.Logger, completer Completer, prompts *Prompts, timeout time.Duration) *PromptAnalyzer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PromptAnalyzer{
		log:       log.With("service", "PromptAnalyzer"),
		completer: completer,
		prompt:    prompts.Get(PromptAnalysis),
		timeout:   timeout,
	}
}

// Analyze asks the model for variations of prompt and returns them as the model ordered them.
func (a *PromptAnalyzer) Analyze(ctx context.Context, prompt string) ([]reports.Variation, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: custom prompt is required", ErrInvalidConfiguration)
	}
	req, err := a.prompt.Render(map[string]any{"Prompt": prompt, "Count": DefaultVariationCount})
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	res, err := a.completer.Complete(callCtx, req)
	if err != nil {
		return nil, fmt.Errorf("prompt analysis call failed: %w", err)
	}
	variations, err := ParseVariations(Decode(res))
	if err != nil {
		a.log.WithTrace(ctx).Warn("prompt analysis reply rejected", "error", err)
		return nil, err
	}
	return variations, nil
}

// ParseVariations requires a non-empty list whose every element has non-empty text and focus.
func ParseVariations(d Decoded) ([]reports.Variation, error) {
	items, ok := d.List("variations")
	if !ok {
		return nil, fmt.Errorf("%w: reply is not a list", ErrInvalidVariationFormat)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: reply has no variations", ErrInvalidVariationFormat)
	}
	out := make([]reports.Variation, 0, len(items))
	for i, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is not an object", ErrInvalidVariationFormat, i)
		}
		text, _ := obj["text"].(string)
		focus, _ := obj["focus"].(string)
		text, focus = strings.TrimSpace(text), strings.TrimSpace(focus)
		if text == "" || focus == "" {
			return nil, fmt.Errorf("%w: element %d needs both text and focus", ErrInvalidVariationFormat, i)
		}
		out = append(out, reports.Variation{Text: text, Focus: focus})
	}
	return out, nil
}

// BuildOutline wraps one section per variation between the fixed overview and conclusion sections.
func BuildOutline(variations []reports.Variation) []reports.Section {
	out := make([]reports.Section, 0, len(variations)+2)
	out = append(out, reports.Section{
		ID:          uuid.NewString(),
		Title:       OverviewSectionTitle,
		Description: "Summarize the scope of the request, the sources consulted and how they were analyzed.",
		FocusAreas:  []string{"scope", "methodology", "sources"},
	})
	for _, v := range variations {
		out = append(out, reports.Section{
			ID:          uuid.NewString(),
			Title:       v.Focus,
			Description: v.Text,
			FocusAreas:  []string{v.Focus},
		})
	}
	out = append(out, reports.Section{
		ID:          uuid.NewString(),
		Title:       ConclusionSectionTitle,
		Description: "Draw conclusions across all sections and recommend concrete next steps.",
		FocusAreas:  []string{"conclusions", "recommendations", "next steps"},
	})
	return out
}
