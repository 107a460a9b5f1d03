// Package history is the append-only per agent/user exchange log used for
// recency recall.
package history

import (
	"context"
	"log/slog"
	"strings"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// DefaultRecentLimit is how many exchanges ReadRecent returns by default.
const DefaultRecentLimit = 30

// Backend persists exchanges. Implementations order entries by a
// monotonically increasing sequence and never delete them.
type Backend interface {
	Append(ctx context.Context, key model.Key, text string) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, key model.Key, limit int) ([]string, error)
	Exists(ctx context.Context, key model.Key) (bool, error)
	// SeedIfEmpty writes entries only when key has none, as one atomic step.
	SeedIfEmpty(ctx context.Context, key model.Key, entries []string) (bool, error)
}

// Store guards a Backend with key validation and result shaping.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// New wraps backend.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger.With("component", "history")}
}

// Append records text under key. An invalid key is logged and ignored.
func (s *Store) Append(ctx context.Context, key model.Key, text string) error {
	if err := key.Validate(); err != nil {
		s.logger.Warn("append skipped", "error", err)
		return nil
	}
	return s.backend.Append(ctx, key, text)
}

// ReadRecent returns the last limit entries oldest first, newline joined.
func (s *Store) ReadRecent(ctx context.Context, key model.Key, limit int) (string, error) {
	if err := key.Validate(); err != nil {
		s.logger.Warn("read skipped", "error", err)
		return "", nil
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	entries, err := s.backend.Recent(ctx, key, limit)
	if err != nil {
		return "", err
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return model.JoinLines(entries), nil
}

// Exists reports whether key has any entries.
func (s *Store) Exists(ctx context.Context, key model.Key) (bool, error) {
	if !key.Valid() {
		return false, nil
	}
	return s.backend.Exists(ctx, key)
}

// Seed splits initial by delimiter and writes the non-empty parts, but only
// when key has no history yet. It reports whether anything was written.
func (s *Store) Seed(ctx context.Context, key model.Key, initial, delimiter string) (bool, error) {
	if err := key.Validate(); err != nil {
		s.logger.Warn("seed skipped", "error", err)
		return false, nil
	}
	if delimiter == "" {
		delimiter = "\n"
	}
	var entries []string
	for _, part := range strings.Split(initial, delimiter) {
		if part = strings.TrimSpace(part); part != "" {
			entries = append(entries, part)
		}
	}
	if len(entries) == 0 {
		return false, nil
	}
	seeded, err := s.backend.SeedIfEmpty(ctx, key, entries)
	if err != nil {
		return false, err
	}
	if !seeded {
		s.logger.Debug("history already present, seed skipped", "key", key)
	}
	return seeded, nil
}
