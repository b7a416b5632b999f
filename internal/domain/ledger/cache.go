package ledger

import (
	"context"
	"time"
)

// RollupCache caches computed rollups keyed by Window.Key. A miss returns
// nil, nil; implementations degrade to a no-op when the backend is
// unavailable so the ledger always falls through to the repository.
type RollupCache interface {
	// Get retrieves a cached rollup. Returns nil, nil on a miss.
	Get(ctx context.Context, window Window) (*Rollup, error)

	// Set stores a rollup. A zero ttl uses the implementation default.
	Set(ctx context.Context, window Window, rollup *Rollup, ttl time.Duration) error

	// InvalidateAll drops every cached rollup. Called when matching or a
	// merge changes the underlying figures.
	InvalidateAll(ctx context.Context) error

	// Close releases any resources held by the cache
	Close() error
}
