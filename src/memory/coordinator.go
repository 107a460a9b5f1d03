// Package memory combines the recency log and the similarity index into the
// context fed to a generation call.
package memory

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/go-companion/src/memory/history"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
	"github.com/Protocol-Lattice/go-companion/src/memory/vector"
)

// Context is what a turn knows before generation.
type Context struct {
	RecentHistory string
	RelevantPast  []string
}

// Coordinator holds no per-call state and is safe for concurrent use.
type Coordinator struct {
	history *history.Store
	index   *vector.Index
	opts    Options
	logger  *slog.Logger
}

// NewCoordinator wires the two stores. Either may be nil, in which case its
// half of the context is always empty.
func NewCoordinator(h *history.Store, ix *vector.Index, opts Options) *Coordinator {
	opts = opts.withDefaults()
	return &Coordinator{
		history: h,
		index:   ix,
		opts:    opts,
		logger:  opts.Logger.With("component", "memory"),
	}
}

// AssembleContext reads similar past exchanges and recent history in
// parallel. Store failures leave the corresponding field empty.
func (c *Coordinator) AssembleContext(ctx context.Context, key model.Key, prompt string) Context {
	var out Context
	if err := key.Validate(); err != nil {
		c.logger.Warn("assemble skipped", "error", err)
		return out
	}

	var g errgroup.Group
	g.Go(func() error {
		if c.index == nil {
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
		defer cancel()
		past, err := c.index.QuerySimilar(cctx, key, prompt, c.opts.TopK)
		if err != nil {
			c.logger.Warn("similarity recall failed", "key", key, "error", err)
			return nil
		}
		out.RelevantPast = past
		return nil
	})
	g.Go(func() error {
		if c.history == nil {
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
		defer cancel()
		recent, err := c.history.ReadRecent(cctx, key, c.opts.RecentLimit)
		if err != nil {
			c.logger.Warn("recent history read failed", "key", key, "error", err)
			return nil
		}
		out.RecentHistory = recent
		return nil
	})
	_ = g.Wait()
	return out
}

// PersistExchange appends text to the log and upserts it into the index in
// parallel. vec may be nil. Failures are logged and reported in the
// returned error only for the history write, which callers may ignore.
func (c *Coordinator) PersistExchange(ctx context.Context, key model.Key, text string, vec []float32) error {
	if err := key.Validate(); err != nil {
		c.logger.Warn("persist skipped", "error", err)
		return nil
	}

	var g errgroup.Group
	var historyErr error
	g.Go(func() error {
		if c.history == nil {
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
		defer cancel()
		if err := c.history.Append(cctx, key, text); err != nil {
			c.logger.Error("history append failed", "key", key, "error", err)
			historyErr = err
		}
		return nil
	})
	g.Go(func() error {
		if c.index == nil {
			return nil
		}
		cctx, cancel := context.WithTimeout(ctx, c.opts.StoreTimeout)
		defer cancel()
		if err := c.index.Upsert(cctx, key, text, vec); err != nil {
			c.logger.Warn("vector upsert failed", "key", key, "error", err)
		}
		return nil
	})
	_ = g.Wait()
	return historyErr
}

// AppendHistory writes text to the recency log only.
func (c *Coordinator) AppendHistory(ctx context.Context, key model.Key, text string) error {
	if c.history == nil {
		return nil
	}
	return c.history.Append(ctx, key, text)
}

// RecentHistory reads the recency log only.
func (c *Coordinator) RecentHistory(ctx context.Context, key model.Key) (string, error) {
	if c.history == nil {
		return "", nil
	}
	return c.history.ReadRecent(ctx, key, c.opts.RecentLimit)
}

// Seed writes seed dialogue to the recency log when the pair has none.
func (c *Coordinator) Seed(ctx context.Context, key model.Key, seed, delimiter string) (bool, error) {
	if c.history == nil {
		return false, nil
	}
	return c.history.Seed(ctx, key, seed, delimiter)
}

// Embed computes a vector with the index's embedder.
func (c *Coordinator) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.index == nil || c.index.State() == vector.Disconnected {
		return nil, nil
	}
	return c.index.Embed(ctx, text)
}

// IndexState reports the similarity index's connectivity.
func (c *Coordinator) IndexState() vector.State {
	if c.index == nil {
		return vector.Disconnected
	}
	return c.index.State()
}
