package history

import (
	"context"
	"sync"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// MemoryBackend keeps exchanges in process. Useful for tests and local runs.
type MemoryBackend struct {
	mu      sync.RWMutex
	seq     int64
	entries map[model.Key][]model.Exchange
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[model.Key][]model.Exchange), now: time.Now}
}

func (m *MemoryBackend) Append(_ context.Context, key model.Key, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(key, text)
	return nil
}

// appendLocked stamps each entry strictly after the previous one.
func (m *MemoryBackend) appendLocked(key model.Key, text string) {
	m.seq++
	ts := m.now().UTC()
	if list := m.entries[key]; len(list) > 0 {
		if last := list[len(list)-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
	}
	m.entries[key] = append(m.entries[key], model.Exchange{Key: key, Text: text, Timestamp: ts})
}

func (m *MemoryBackend) Recent(_ context.Context, key model.Key, limit int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[key]
	out := make([]string, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i].Text)
	}
	return out, nil
}

func (m *MemoryBackend) Exists(_ context.Context, key model.Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[key]) > 0, nil
}

func (m *MemoryBackend) SeedIfEmpty(_ context.Context, key model.Key, entries []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries[key]) > 0 {
		return false, nil
	}
	for _, e := range entries {
		m.appendLocked(key, e)
	}
	return true, nil
}
