package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiLLM struct {
	Client *genai.Client
	Model  string
}

// NewGeminiLLM falls back to GOOGLE_API_KEY or GEMINI_API_KEY when apiKey is empty.
func NewGeminiLLM(ctx context.Context, model, apiKey string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiLLM{Client: client, Model: model}, nil
}

func (g *GeminiLLM) model(req CompletionRequest) *genai.GenerativeModel {
	m := g.Client.GenerativeModel(g.Model)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.Temperature > 0 {
		m.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.JSON {
		m.ResponseMIMEType = "application/json"
	}
	return m
}

func textOf(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

func (g *GeminiLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := g.model(req).GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := textOf(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (g *GeminiLLM) GenerateStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	it := g.model(req).GenerateContentStream(ctx, genai.Text(req.Prompt))

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var sb strings.Builder
		for {
			resp, err := it.Next()
			if errors.Is(err, iterator.Done) {
				finish(ctx, ch, sb.String(), nil)
				return
			}
			if err != nil {
				finish(ctx, ch, sb.String(), fmt.Errorf("gemini stream: %w", err))
				return
			}
			delta := textOf(resp)
			if delta == "" {
				continue
			}
			sb.WriteString(delta)
			if !send(ctx, ch, StreamChunk{Delta: delta}) {
				return
			}
		}
	}()
	return ch, nil
}

// Close releases the underlying client.
func (g *GeminiLLM) Close() error {
	return g.Client.Close()
}

var _ LLM = (*GeminiLLM)(nil)
