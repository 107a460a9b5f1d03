package personality

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// DefaultProfileTraits is how many top traits feed a profile synthesis.
const DefaultProfileTraits = 50

// Store persists traits. Upsert must be a single atomic operation on the
// backing store: insert when no trait shares (agent, user, type, prefix),
// otherwise raise confidence and refresh the source only when the new
// confidence is strictly higher.
type Store interface {
	Upsert(ctx context.Context, t Trait) (Outcome, error)
	// Top returns up to limit traits for key by descending confidence.
	Top(ctx context.Context, key model.Key, limit int) ([]Trait, error)
}

// MemoryStore keeps traits in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	traits map[traitID]*Trait
	now    func() time.Time
}

type traitID struct {
	key    model.Key
	typ    TraitType
	prefix string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traits: make(map[traitID]*Trait), now: time.Now}
}

func (m *MemoryStore) Upsert(_ context.Context, t Trait) (Outcome, error) {
	if err := t.Validate(); err != nil {
		return Kept, err
	}
	id := traitID{key: t.Key(), typ: t.Type, prefix: t.Prefix()}
	now := m.now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.traits[id]
	if !ok {
		t.CreatedAt, t.UpdatedAt = now, now
		m.traits[id] = &t
		return Inserted, nil
	}
	if t.Confidence <= existing.Confidence {
		return Kept, nil
	}
	existing.Confidence = t.Confidence
	existing.Source = t.Source
	existing.UpdatedAt = now
	return Raised, nil
}

func (m *MemoryStore) Top(_ context.Context, key model.Key, limit int) ([]Trait, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultProfileTraits
	}
	m.mu.Lock()
	out := make([]Trait, 0, len(m.traits))
	for id, t := range m.traits {
		if id.key == key {
			out = append(out, *t)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
