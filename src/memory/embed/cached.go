package embed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/Protocol-Lattice/go-companion/src/cache"
)

// QueryTTL is how long a computed embedding is reused for identical input.
const QueryTTL = time.Hour

// CachedEmbedder memoizes an Embedder by exact input text. Entries of the
// wrong width are treated as corrupt and recomputed.
type CachedEmbedder struct {
	inner  Embedder
	cache  *ristretto.Cache
	dim    int
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedEmbedder wraps inner. maxBytes bounds the cached vectors.
func NewCachedEmbedder(inner Embedder, dim int, ttl time.Duration, maxBytes int64) (*CachedEmbedder, error) {
	if inner == nil {
		return nil, fmt.Errorf("cached embedder: nil inner embedder")
	}
	if ttl <= 0 {
		ttl = QueryTTL
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cached embedder: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: rc, dim: dim, ttl: ttl}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := "embedding:" + cache.HashKey(text)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok && c.validWidth(vec) {
			c.hits.Add(1)
			return append([]float32(nil), vec...), nil
		}
		c.cache.Del(key)
	}
	c.misses.Add(1)

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if !c.validWidth(vec) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), c.dim)
	}
	c.cache.SetWithTTL(key, append([]float32(nil), vec...), int64(len(vec)*4), c.ttl)
	c.cache.Wait()
	return vec, nil
}

func (c *CachedEmbedder) validWidth(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	return c.dim <= 0 || len(vec) == c.dim
}

// Stats reports cache hits and misses since construction.
func (c *CachedEmbedder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Close stops the cache's background goroutines and closes the wrapped
// provider when it holds a client.
func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	if closer, ok := c.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
