package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// DefaultDim is the vector width stored in the index unless configured
// otherwise.
const DefaultDim = 1536

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// ErrDimension is returned when a provider yields a vector of the wrong width.
var ErrDimension = errors.New("embedding dimension mismatch")

// ---------- Dummy (fallback) ----------

// DummyEmbedder derives a deterministic vector from the text bytes. It needs
// no network and is used for local runs and tests.
type DummyEmbedder struct {
	Dim int
}

func (d DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := d.Dim
	if dim <= 0 {
		dim = DefaultDim
	}
	return DummyEmbedding(text, dim), nil
}

// DummyEmbedding spreads the text bytes over dim buckets and normalizes.
func DummyEmbedding(text string, dim int) []float32 {
	vec := make([]float32, dim)
	for i, ch := range []byte(text) {
		vec[i%dim] += float32(ch) / 255.0
	}
	return model.Normalize(vec)
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider   string // openai|gemini|ollama|fastembed|dummy
	Model      string
	Dim        int
	APIKey     string
	OllamaHost string
}

// New builds the configured provider. When the provider cannot be
// constructed it logs and falls back to DummyEmbedder.
func New(ctx context.Context, cfg Config, logger *slog.Logger) Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dim <= 0 {
		cfg.Dim = DefaultDim
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var (
		e   Embedder
		err error
	)
	switch provider {
	case "openai":
		e, err = NewOpenAIEmbedder(cfg.Model, cfg.APIKey, cfg.Dim)
	case "google", "gemini":
		e, err = NewGeminiEmbedder(ctx, cfg.Model, cfg.APIKey)
	case "ollama":
		e, err = NewOllamaEmbedder(cfg.Model, cfg.OllamaHost)
	case "fastembed":
		e, err = NewFastEmbedder(ctx, defaultFastEmbedOptions(cfg.Model))
	case "", "dummy":
		return DummyEmbedder{Dim: cfg.Dim}
	default:
		err = fmt.Errorf("unknown embed provider %q", cfg.Provider)
	}
	if err != nil {
		logger.Warn("embedder: falling back to dummy", "provider", provider, "error", err)
		return DummyEmbedder{Dim: cfg.Dim}
	}
	return e
}
