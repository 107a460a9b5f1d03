package models

import (
	"context"
	"fmt"
	"strings"
)

// DummyLLM is a lightweight model implementation useful for local testing without API calls.
type DummyLLM struct {
	Prefix string
	// JSONReply is returned verbatim for JSON-mode requests.
	JSONReply string
}

func NewDummyLLM(prefix string) *DummyLLM {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyLLM{Prefix: prefix, JSONReply: `{"traits":[]}`}
}

func (d *DummyLLM) Complete(_ context.Context, req CompletionRequest) (string, error) {
	if req.JSON {
		return d.JSONReply, nil
	}
	lines := strings.Split(req.Prompt, "\n")
	var last string
	for i := len(lines) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(lines[i])
		if candidate != "" {
			last = candidate
			break
		}
	}
	if last == "" {
		last = "<empty prompt>"
	}
	return fmt.Sprintf("%s %s", d.Prefix, last), nil
}

// GenerateStream simulates streaming by splitting the response into word-level chunks.
func (d *DummyLLM) GenerateStream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	text, _ := d.Complete(ctx, req)

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		words := strings.Fields(text)
		var sb strings.Builder
		for i, word := range words {
			if i > 0 {
				word = " " + word
			}
			sb.WriteString(word)
			if !send(ctx, ch, StreamChunk{Delta: word}) {
				return
			}
		}
		finish(ctx, ch, sb.String(), nil)
	}()

	return ch, nil
}

var _ LLM = (*DummyLLM)(nil)
