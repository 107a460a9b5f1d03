package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/cache"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

type countingEmbedder struct {
	calls atomic.Int32
	dim   int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return DummyEmbedding(text, c.dim), nil
}

func TestDummyEmbeddingDeterministic(t *testing.T) {
	a := DummyEmbedding("hello", DefaultDim)
	b := DummyEmbedding("hello", DefaultDim)
	if len(a) != DefaultDim {
		t.Fatalf("expected %d dims, got %d", DefaultDim, len(a))
	}
	if model.CosineSimilarity(a, b) < 0.9999 {
		t.Fatal("expected identical embeddings for identical text")
	}
	if model.CosineSimilarity(a, DummyEmbedding("goodbye", DefaultDim)) > 0.9999 {
		t.Fatal("expected different embeddings for different text")
	}
}

func TestNewFallsBackToDummy(t *testing.T) {
	e := New(context.Background(), Config{Provider: "nope", Dim: 8}, nil)
	if _, ok := e.(DummyEmbedder); !ok {
		t.Fatalf("expected DummyEmbedder, got %T", e)
	}
	vec, err := e.Embed(context.Background(), "x")
	if err != nil || len(vec) != 8 {
		t.Fatalf("unexpected dummy output len=%d err=%v", len(vec), err)
	}
}

func TestCachedEmbedderHitsByExactText(t *testing.T) {
	inner := &countingEmbedder{dim: 16}
	c, err := NewCachedEmbedder(inner, 16, time.Hour, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("expected 1 provider call, got %d", got)
	}
	if _, err := c.Embed(ctx, "Hello"); err != nil {
		t.Fatalf("embed: %v", err)
	}
	if got := inner.calls.Load(); got != 2 {
		t.Fatalf("expected distinct text to miss, got %d calls", got)
	}
}

func TestCachedEmbedderRecomputesCorruptEntry(t *testing.T) {
	inner := &countingEmbedder{dim: 16}
	c, err := NewCachedEmbedder(inner, 16, time.Hour, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	c.cache.SetWithTTL("embedding:"+cache.HashKey("hello"), []float32{1, 2, 3}, 12, time.Hour)
	c.cache.Wait()

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 16 {
		t.Fatalf("expected recomputed 16-dim vector, got %d", len(vec))
	}
	if inner.calls.Load() != 1 {
		t.Fatalf("expected provider to be called once, got %d", inner.calls.Load())
	}
}

func TestCachedEmbedderRejectsWrongWidth(t *testing.T) {
	inner := &countingEmbedder{dim: 8}
	c, err := NewCachedEmbedder(inner, 16, time.Hour, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer c.Close()

	if _, err := c.Embed(context.Background(), "hello"); !errors.Is(err, ErrDimension) {
		t.Fatalf("expected ErrDimension, got %v", err)
	}
}

type closingEmbedder struct {
	countingEmbedder
	closed atomic.Int32
}

func (c *closingEmbedder) Close() error {
	c.closed.Add(1)
	return nil
}

func TestCachedEmbedderClosesInnerClient(t *testing.T) {
	inner := &closingEmbedder{countingEmbedder: countingEmbedder{dim: 8}}
	c, err := NewCachedEmbedder(inner, 8, time.Hour, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if inner.closed.Load() != 1 {
		t.Fatalf("expected inner client closed once, got %d", inner.closed.Load())
	}

	plain, err := NewCachedEmbedder(&countingEmbedder{dim: 8}, 8, time.Hour, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := plain.Close(); err != nil {
		t.Fatalf("close without inner client: %v", err)
	}
}
