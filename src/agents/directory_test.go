package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()
	dir, err := NewStatic(model.AgentProfile{ID: " b ", Name: "Bo"}, model.AgentProfile{ID: "a", Name: "Ada"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, err := dir.Agent(ctx, "b")
	if err != nil || p.Name != "Bo" {
		t.Fatalf("expected Bo, got %+v err=%v", p, err)
	}
	if _, err := dir.Agent(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := dir.Save(ctx, model.AgentProfile{ID: "c"}); err == nil {
		t.Fatal("expected missing name to be rejected")
	}
	list, _ := dir.List(ctx)
	if len(list) != 2 || list[0].ID != "a" {
		t.Fatalf("unexpected list %+v", list)
	}
}
