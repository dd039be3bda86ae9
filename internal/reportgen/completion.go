package reportgen

import (
	"context"
	"errors"

	"github.com/yungbote/research-reports/internal/platform/openai"
)

// Shape hints the provider at the JSON object the caller expects back.
type Shape struct {
	Name   string
	Schema map[string]any
}

type CompletionRequest struct {
	System string
	Prompt string
	Shape  *Shape
}

// CompletionResult is the provider-neutral reply: Structured when the provider returned a JSON
// object, RawText otherwise.
type CompletionResult struct {
	Structured map[string]any
	RawText    string
}

type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// OpenAICompleter adapts the OpenAI Responses client. Replies that fail JSON decoding are
// passed through as raw text so the shared decoder can try its fallbacks.
type OpenAICompleter struct {
	client openai.Client
}

func NewOpenAICompleter(client openai.Client) *OpenAICompleter {
	return &OpenAICompleter{client: client}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	if req.Shape == nil {
		text, err := c.client.GenerateText(ctx, req.System, req.Prompt)
		if err != nil {
			return CompletionResult{}, err
		}
		return CompletionResult{RawText: text}, nil
	}
	obj, err := c.client.GenerateJSON(ctx, req.System, req.Prompt, req.Shape.Name, req.Shape.Schema)
	if err != nil {
		var decodeErr *openai.JSONDecodeError
		if errors.As(err, &decodeErr) {
			return CompletionResult{RawText: decodeErr.Text}, nil
		}
		return CompletionResult{}, err
	}
	return CompletionResult{Structured: obj}, nil
}
