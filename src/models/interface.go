package models

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("models: empty response")

// CompletionRequest is a single system+user exchange with a model.
type CompletionRequest struct {
	System      string
	Prompt      string
	JSON        bool // ask the provider for a JSON object when it supports it
	Temperature float32
	MaxTokens   int
}

// StreamChunk is one piece of a streamed generation. The final chunk has
// Done set and carries the full text, plus Err when the stream failed.
type StreamChunk struct {
	Delta    string
	Done     bool
	FullText string
	Err      error
}

// Completer produces a whole response in one call.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Generator streams a response as it is produced.
type Generator interface {
	GenerateStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// LLM is what the companion service needs from a provider.
type LLM interface {
	Completer
	Generator
}

// Collect drains a stream and returns its text.
func Collect(ch <-chan StreamChunk) (string, error) {
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Done {
			if chunk.Err != nil {
				return sb.String(), chunk.Err
			}
			if chunk.FullText != "" {
				return chunk.FullText, nil
			}
			return sb.String(), nil
		}
		sb.WriteString(chunk.Delta)
	}
	return sb.String(), nil
}

// send delivers a chunk unless the consumer has gone away.
func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish emits the terminal chunk for a stream.
func finish(ctx context.Context, ch chan<- StreamChunk, full string, err error) {
	send(ctx, ch, StreamChunk{Done: true, FullText: full, Err: err})
}
