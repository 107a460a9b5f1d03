package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// ResponseTTL is how long a cached reply stays servable.
const ResponseTTL = 24 * time.Hour

const responsePrefix = "response_cache"

// ResponseCache maps (agent, user, normalized prompt) to a previously generated
// reply. Backend failures never reach the caller: a failed lookup is a miss
// and a failed store is logged.
type ResponseCache struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

// NewResponseCache wraps kv. A non-positive ttl selects ResponseTTL.
func NewResponseCache(kv KV, ttl time.Duration, logger *slog.Logger) *ResponseCache {
	if ttl <= 0 {
		ttl = ResponseTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ResponseCache{kv: kv, ttl: ttl, logger: logger.With("component", "response_cache")}
}

// NormalizePrompt trims, lowercases and collapses whitespace runs.
func NormalizePrompt(prompt string) string {
	return strings.Join(strings.Fields(strings.ToLower(prompt)), " ")
}

// ResponseKey is the storage key for prompt under key.
func ResponseKey(key model.Key, prompt string) string {
	return responsePrefix + ":" + key.String() + ":" + HashKey(NormalizePrompt(prompt))
}

// Lookup returns the cached reply for prompt, if any.
func (rc *ResponseCache) Lookup(ctx context.Context, key model.Key, prompt string) (string, bool) {
	if rc == nil || rc.kv == nil {
		return "", false
	}
	if err := key.Validate(); err != nil {
		rc.logger.Warn("cache lookup skipped", "error", err)
		return "", false
	}
	val, ok, err := rc.kv.Get(ctx, ResponseKey(key, prompt))
	if err != nil {
		rc.logger.Warn("cache lookup failed", "key", key, "error", err)
		return "", false
	}
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

// Store records response for prompt and refreshes its expiry.
func (rc *ResponseCache) Store(ctx context.Context, key model.Key, prompt, response string) {
	if rc == nil || rc.kv == nil {
		return
	}
	if err := key.Validate(); err != nil {
		rc.logger.Warn("cache store skipped", "error", err)
		return
	}
	if err := rc.kv.Set(ctx, ResponseKey(key, prompt), response, rc.ttl); err != nil {
		rc.logger.Warn("cache store failed", "key", key, "error", err)
	}
}
