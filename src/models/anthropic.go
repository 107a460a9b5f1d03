package models

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const jsonOnlyInstruction = "Respond with a single JSON object and nothing else."

// AnthropicLLM talks to Anthropic's Messages API.
type AnthropicLLM struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicLLM falls back to ANTHROPIC_API_KEY when apiKey is empty.
func NewAnthropicLLM(model, apiKey string) *AnthropicLLM {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(apiKey),
	)
	return &AnthropicLLM{
		Client:    &cl,
		Model:     model, // e.g. "claude-3-5-sonnet-latest"
		MaxTokens: 1024,
	}
}

func (a *AnthropicLLM) params(req CompletionRequest) anthropic.MessageNewParams {
	maxTokens := a.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	p := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	system := req.System
	if req.JSON {
		// no native JSON mode
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}
	if system != "" {
		p.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		p.Temperature = anthropic.Float(float64(req.Temperature))
	}
	return p
}

// Complete performs a single-turn completion and returns concatenated text.
func (a *AnthropicLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	msg, err := a.Client.Messages.New(ctx, a.params(req))
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func (a *AnthropicLLM) GenerateStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	stream := a.Client.Messages.NewStreaming(ctx, a.params(req))

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer stream.Close()
		var sb strings.Builder
		for stream.Next() {
			event := stream.Current()
			evt, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			delta, ok := evt.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			sb.WriteString(delta.Text)
			if !send(ctx, ch, StreamChunk{Delta: delta.Text}) {
				return
			}
		}
		var err error
		if serr := stream.Err(); serr != nil {
			err = fmt.Errorf("anthropic stream: %w", serr)
		}
		finish(ctx, ch, sb.String(), err)
	}()
	return ch, nil
}

var _ LLM = (*AnthropicLLM)(nil)
