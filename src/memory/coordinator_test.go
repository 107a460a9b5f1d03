package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Protocol-Lattice/go-companion/src/memory/embed"
	"github.com/Protocol-Lattice/go-companion/src/memory/history"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
	"github.com/Protocol-Lattice/go-companion/src/memory/vector"
)

const dim = 32

func newCoordinator(t *testing.T, backend vector.Backend) (*Coordinator, *history.MemoryBackend) {
	t.Helper()
	hb := history.NewMemoryBackend()
	ix := vector.NewIndex(backend, embed.DummyEmbedder{Dim: dim}, dim, nil)
	return NewCoordinator(history.New(hb, nil), ix, Options{}), hb
}

func TestPersistThenAssemble(t *testing.T) {
	ctx := context.Background()
	cb, err := vector.NewChromemBackend("", "test")
	if err != nil {
		t.Fatalf("chromem: %v", err)
	}
	c, _ := newCoordinator(t, cb)
	key := model.NewKey("a1", "u1")

	for i := 0; i < 3; i++ {
		text := model.FormatExchange(fmt.Sprintf("question %d", i), "Ava", "answer")
		if err := c.PersistExchange(ctx, key, text, nil); err != nil {
			t.Fatalf("persist: %v", err)
		}
	}
	got := c.AssembleContext(ctx, key, "question 1")
	if strings.Count(got.RecentHistory, "Human:") != 3 {
		t.Fatalf("expected 3 exchanges in recent history, got %q", got.RecentHistory)
	}
	if len(got.RelevantPast) != 3 {
		t.Fatalf("expected 3 similar exchanges, got %v", got.RelevantPast)
	}

	other := c.AssembleContext(ctx, model.NewKey("a1", "u2"), "question 1")
	if other.RecentHistory != "" || len(other.RelevantPast) != 0 {
		t.Fatalf("expected no context for another user, got %+v", other)
	}
}

type downBackend struct{}

func (downBackend) EnsureCollection(context.Context, int) error {
	return fmt.Errorf("%w: connection refused", model.ErrUnavailable)
}
func (downBackend) Upsert(context.Context, model.Key, string, []float32) error { return nil }
func (downBackend) Query(context.Context, model.Key, []float32, int) ([]vector.Match, error) {
	return nil, nil
}

func TestAssembleWithDisconnectedIndex(t *testing.T) {
	ctx := context.Background()
	c, hb := newCoordinator(t, downBackend{})
	key := model.NewKey("a1", "u1")
	_ = hb.Append(ctx, key, "Human: hi\nAva: hello")

	got := c.AssembleContext(ctx, key, "hi")
	if got.RecentHistory != "Human: hi\nAva: hello" {
		t.Fatalf("expected recent history despite vector outage, got %q", got.RecentHistory)
	}
	if len(got.RelevantPast) != 0 {
		t.Fatalf("expected empty relevant past, got %v", got.RelevantPast)
	}
	if c.IndexState() != vector.Disconnected {
		t.Fatal("expected index to be disconnected")
	}

	if err := c.PersistExchange(ctx, key, "Human: again\nAva: ok", nil); err != nil {
		t.Fatalf("persist should still write history: %v", err)
	}
	recent, _ := c.RecentHistory(ctx, key)
	if !strings.HasSuffix(recent, "Human: again\nAva: ok") {
		t.Fatalf("expected new exchange in history, got %q", recent)
	}
}

func TestInvalidKeyYieldsEmptyContext(t *testing.T) {
	cb, _ := vector.NewChromemBackend("", "test")
	c, hb := newCoordinator(t, cb)
	ctx := context.Background()
	if err := c.PersistExchange(ctx, model.NewKey("a1", ""), "x", nil); err != nil {
		t.Fatalf("persist: %v", err)
	}
	if ok, _ := hb.Exists(ctx, model.NewKey("a1", "")); ok {
		t.Fatal("invalid key must not be written")
	}
	got := c.AssembleContext(ctx, model.NewKey("", "u1"), "x")
	if got.RecentHistory != "" || got.RelevantPast != nil {
		t.Fatalf("expected empty context, got %+v", got)
	}
}
