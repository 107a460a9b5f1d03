// Package vector provides similarity recall over embedded exchanges, filtered
// to a single agent/user pair.
package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Protocol-Lattice/go-companion/src/memory/embed"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// DefaultTopK is how many similar exchanges QuerySimilar returns by default.
const DefaultTopK = 5

// State is the index's connectivity.
type State int32

const (
	Connected State = iota
	// Disconnected is terminal for the process: every call becomes a no-op.
	Disconnected
)

func (s State) String() string {
	if s == Disconnected {
		return "disconnected"
	}
	return "connected"
}

// Match is one similarity hit.
type Match struct {
	Text  string
	Score float64
}

// Backend is a concrete vector database.
type Backend interface {
	// EnsureCollection creates the collection with dim, cosine distance and
	// agent/user secondary indexes when it does not exist.
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, key model.Key, text string, vector []float32) error
	// Query returns up to topK matches restricted to key, best first.
	Query(ctx context.Context, key model.Key, vector []float32, topK int) ([]Match, error)
}

// Index embeds text and talks to a Backend. Auth or connection failures flip
// it to Disconnected, after which it never touches the backend again.
type Index struct {
	backend  Backend
	embedder embed.Embedder
	dim      int
	logger   *slog.Logger

	state   atomic.Int32
	mu      sync.Mutex
	ensured bool
}

// NewIndex wires backend and embedder. Pass an embed.CachedEmbedder to reuse
// query embeddings.
func NewIndex(backend Backend, embedder embed.Embedder, dim int, logger *slog.Logger) *Index {
	if dim <= 0 {
		dim = embed.DefaultDim
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		backend:  backend,
		embedder: embedder,
		dim:      dim,
		logger:   logger.With("component", "vector_index"),
	}
}

// State reports the current connectivity.
func (ix *Index) State() State {
	if ix == nil || ix.backend == nil {
		return Disconnected
	}
	return State(ix.state.Load())
}

// Embed computes the vector for text with the index's embedder.
func (ix *Index) Embed(ctx context.Context, text string) ([]float32, error) {
	if ix == nil || ix.embedder == nil {
		return nil, embed.ErrNotSupported
	}
	return ix.embedder.Embed(ctx, text)
}

// Upsert stores text under key. vector may be nil, in which case it is
// computed. Returns nil without doing anything once disconnected.
func (ix *Index) Upsert(ctx context.Context, key model.Key, text string, vector []float32) error {
	if ix.State() == Disconnected {
		return nil
	}
	if err := key.Validate(); err != nil {
		ix.logger.Warn("upsert skipped", "error", err)
		return nil
	}
	if err := ix.ensure(ctx); err != nil {
		return ix.fail("ensure", err)
	}
	if len(vector) == 0 {
		v, err := ix.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed exchange: %w", err)
		}
		vector = v
	}
	if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, want %d", embed.ErrDimension, len(vector), ix.dim)
	}
	if err := ix.backend.Upsert(ctx, key, text, vector); err != nil {
		return ix.fail("upsert", err)
	}
	return nil
}

// QuerySimilar returns up to topK stored texts for key, most similar first.
func (ix *Index) QuerySimilar(ctx context.Context, key model.Key, query string, topK int) ([]string, error) {
	if ix.State() == Disconnected {
		return nil, nil
	}
	if err := key.Validate(); err != nil {
		ix.logger.Warn("query skipped", "error", err)
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if err := ix.ensure(ctx); err != nil {
		return nil, ix.fail("ensure", err)
	}
	vector, err := ix.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := ix.backend.Query(ctx, key, vector, topK)
	if err != nil {
		return nil, ix.fail("query", err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Text)
	}
	return out, nil
}

func (ix *Index) ensure(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.ensured {
		return nil
	}
	if err := ix.backend.EnsureCollection(ctx, ix.dim); err != nil {
		return err
	}
	ix.ensured = true
	return nil
}

// fail latches Disconnected on connectivity errors and swallows them.
// Other errors are returned for the caller to log.
func (ix *Index) fail(op string, err error) error {
	if !IsConnectivityError(err) {
		return fmt.Errorf("vector %s: %w", op, err)
	}
	if ix.state.CompareAndSwap(int32(Connected), int32(Disconnected)) {
		ix.logger.Error("vector index disconnected; similarity recall disabled", "op", op, "error", err)
	}
	return nil
}

// IsConnectivityError reports auth and connection failures. Context
// cancellation is not one.
func IsConnectivityError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, model.ErrUnavailable) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
