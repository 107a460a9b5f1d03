package companion

import (
	"sync/atomic"

	"github.com/Protocol-Lattice/go-companion/src/personality"
)

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	turns              atomic.Int64
	cacheHits          atomic.Int64
	cacheMisses        atomic.Int64
	rateLimited        atomic.Int64
	generationFailures atomic.Int64
	analysesRun        atomic.Int64
	analysesSkipped    atomic.Int64
	traitsInserted     atomic.Int64
	traitsRaised       atomic.Int64
}

func (m *Metrics) IncTurns()              { m.turns.Add(1) }
func (m *Metrics) IncCacheHits()          { m.cacheHits.Add(1) }
func (m *Metrics) IncCacheMisses()        { m.cacheMisses.Add(1) }
func (m *Metrics) IncRateLimited()        { m.rateLimited.Add(1) }
func (m *Metrics) IncGenerationFailures() { m.generationFailures.Add(1) }

// ObserveAnalysis folds one analyzer result into the counters.
func (m *Metrics) ObserveAnalysis(res personality.Result) {
	if !res.Ran() {
		m.analysesSkipped.Add(1)
		return
	}
	m.analysesRun.Add(1)
	m.traitsInserted.Add(int64(res.Inserted))
	m.traitsRaised.Add(int64(res.Raised))
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Turns              int64  `json:"turns"`
	CacheHits          int64  `json:"cache_hits"`
	CacheMisses        int64  `json:"cache_misses"`
	RateLimited        int64  `json:"rate_limited"`
	GenerationFailures int64  `json:"generation_failures"`
	AnalysesRun        int64  `json:"analyses_run"`
	AnalysesSkipped    int64  `json:"analyses_skipped"`
	TraitsInserted     int64  `json:"traits_inserted"`
	TraitsRaised       int64  `json:"traits_raised"`
	EmbeddingHits      int64  `json:"embedding_cache_hits"`
	EmbeddingMisses    int64  `json:"embedding_cache_misses"`
	VectorIndex        string `json:"vector_index"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Turns:              m.turns.Load(),
		CacheHits:          m.cacheHits.Load(),
		CacheMisses:        m.cacheMisses.Load(),
		RateLimited:        m.rateLimited.Load(),
		GenerationFailures: m.generationFailures.Load(),
		AnalysesRun:        m.analysesRun.Load(),
		AnalysesSkipped:    m.analysesSkipped.Load(),
		TraitsInserted:     m.traitsInserted.Load(),
		TraitsRaised:       m.traitsRaised.Load(),
	}
}
