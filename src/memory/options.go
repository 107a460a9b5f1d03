package memory

import (
	"log/slog"
	"time"

	"github.com/Protocol-Lattice/go-companion/src/memory/history"
	"github.com/Protocol-Lattice/go-companion/src/memory/vector"
)

// Options configures the Coordinator.
type Options struct {
	RecentLimit int
	TopK        int
	// StoreTimeout bounds each store call so one slow backend cannot stall a turn.
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultOptions returns the coordinator defaults.
func DefaultOptions() Options {
	return Options{
		RecentLimit:  history.DefaultRecentLimit,
		TopK:         vector.DefaultTopK,
		StoreTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.RecentLimit <= 0 {
		o.RecentLimit = d.RecentLimit
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
