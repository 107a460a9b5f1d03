package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

type OllamaLLM struct {
	Client *ollama.Client
	Model  string
}

// NewOllamaLLM connects to host, or OLLAMA_HOST, or the local default.
func NewOllamaLLM(model, host string) (*OllamaLLM, error) {
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}

	return &OllamaLLM{
		Client: ollama.NewClient(u, httpClient),
		Model:  model,
	}, nil
}

func (o *OllamaLLM) chatRequest(req CompletionRequest, stream bool) *ollama.ChatRequest {
	msgs := make([]ollama.Message, 0, 2)
	if req.System != "" {
		msgs = append(msgs, ollama.Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, ollama.Message{Role: "user", Content: req.Prompt})

	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}

	cr := &ollama.ChatRequest{
		Model:    o.Model,
		Messages: msgs,
		Stream:   &stream,
		Options:  opts,
	}
	if req.JSON {
		cr.Format = json.RawMessage(`"json"`)
	}
	return cr
}

func (o *OllamaLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var text strings.Builder
	err := o.Client.Chat(ctx, o.chatRequest(req, false), func(cr ollama.ChatResponse) error {
		text.WriteString(cr.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if text.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

// GenerateStream leverages Ollama's native callback-based streaming.
func (o *OllamaLLM) GenerateStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var sb strings.Builder
		err := o.Client.Chat(ctx, o.chatRequest(req, true), func(cr ollama.ChatResponse) error {
			if cr.Message.Content == "" {
				return nil
			}
			sb.WriteString(cr.Message.Content)
			if !send(ctx, ch, StreamChunk{Delta: cr.Message.Content}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			err = fmt.Errorf("ollama stream: %w", err)
		}
		finish(ctx, ch, sb.String(), err)
	}()
	return ch, nil
}

var _ LLM = (*OllamaLLM)(nil)
