package cache

import (
	"context"
	"sync"
	"time"

	"github.com/reconcile/backend/internal/domain/ledger"
)

// rollupEntry is a cached rollup with its expiration
type rollupEntry struct {
	rollup    *ledger.Rollup
	expiresAt time.Time
}

// InMemoryRollupCache caches rollups in a local map. It honors TTLs and
// invalidation but is local to one instance; the factory hands it out only
// as a fallback. Cached rollups are shared read-only values.
type InMemoryRollupCache struct {
	mu         sync.RWMutex
	entries    map[string]rollupEntry
	defaultTTL time.Duration
	stopChan   chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// NewInMemoryRollupCache creates a new in-memory rollup cache
func NewInMemoryRollupCache(defaultTTL time.Duration) *InMemoryRollupCache {
	if defaultTTL <= 0 {
		defaultTTL = defaultRollupTTL
	}
	c := &InMemoryRollupCache{
		entries:    make(map[string]rollupEntry),
		defaultTTL: defaultTTL,
		stopChan:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

// Get retrieves a cached rollup. Returns nil, nil on a miss.
func (c *InMemoryRollupCache) Get(ctx context.Context, window ledger.Window) (*ledger.Rollup, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.entries[window.Key()]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, nil
	}
	return e.rollup, nil
}

// Set stores a rollup. A zero ttl uses the cache default.
func (c *InMemoryRollupCache) Set(ctx context.Context, window ledger.Window, rollup *ledger.Rollup, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[window.Key()] = rollupEntry{
		rollup:    rollup,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// InvalidateAll drops every cached rollup window
func (c *InMemoryRollupCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]rollupEntry)
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryRollupCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryRollupCache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryRollupCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Size returns the number of cached windows (for testing/monitoring)
func (c *InMemoryRollupCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ensure InMemoryRollupCache implements RollupCache
var _ ledger.RollupCache = (*InMemoryRollupCache)(nil)
