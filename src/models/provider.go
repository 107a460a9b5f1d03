package models

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a generation provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	Host     string // ollama only
}

// NewLLMProvider returns a concrete LLM.
func NewLLMProvider(ctx context.Context, cfg Config) (LLM, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		return NewOpenAILLM(cfg.Model, cfg.APIKey), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, cfg.Model, cfg.APIKey)
	case "ollama":
		return NewOllamaLLM(cfg.Model, cfg.Host)
	case "anthropic", "claude":
		return NewAnthropicLLM(cfg.Model, cfg.APIKey), nil
	case "dummy", "":
		return NewDummyLLM(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}
