// Package ratelimit bounds generation calls per caller.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold is how many tracked keys trigger eviction of idle ones.
const sweepThreshold = 10_000

// Limiter is a keyed token bucket: each key may spend events per window.
type Limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	idle    time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New allows events per window for every key. events <= 0 disables limiting.
func New(events int, window time.Duration) *Limiter {
	l := &Limiter{buckets: make(map[string]*bucket), now: time.Now, burst: events, idle: 2 * window}
	if events <= 0 || window <= 0 {
		l.limit = rate.Inf
		return l
	}
	l.limit = rate.Every(window / time.Duration(events))
	return l
}

// Allow reports whether key may proceed now, spending one token if so.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= sweepThreshold {
			l.sweep(now)
		}
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

func (l *Limiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idle {
			delete(l.buckets, k)
		}
	}
}
