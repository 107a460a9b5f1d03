// Package agents holds the catalogue of agent personas.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// ErrNotFound is returned for an unknown agent id.
var ErrNotFound = errors.New("agent not found")

// Directory resolves and records agent profiles.
type Directory interface {
	Agent(ctx context.Context, id string) (model.AgentProfile, error)
	Save(ctx context.Context, profile model.AgentProfile) error
	List(ctx context.Context) ([]model.AgentProfile, error)
}

// Static is an in-memory Directory, usually loaded from configuration.
type Static struct {
	mu     sync.RWMutex
	agents map[string]model.AgentProfile
}

func NewStatic(profiles ...model.AgentProfile) (*Static, error) {
	s := &Static{agents: make(map[string]model.AgentProfile, len(profiles))}
	for _, p := range profiles {
		if err := s.Save(context.Background(), p); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Static) Agent(_ context.Context, id string) (model.AgentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.agents[strings.TrimSpace(id)]
	if !ok {
		return model.AgentProfile{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return p, nil
}

// Save adds or replaces a profile. ID and Name are required.
func (s *Static) Save(_ context.Context, p model.AgentProfile) error {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("agent profile needs an id and a name")
	}
	s.mu.Lock()
	s.agents[p.ID] = p
	s.mu.Unlock()
	return nil
}

func (s *Static) List(context.Context) ([]model.AgentProfile, error) {
	s.mu.RLock()
	out := make([]model.AgentProfile, 0, len(s.agents))
	for _, p := range s.agents {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
