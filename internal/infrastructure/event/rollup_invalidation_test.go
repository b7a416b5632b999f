package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRollupCache counts invalidations for testing
type fakeRollupCache struct {
	mu          sync.Mutex
	invalidated int
	err         error
}

func (c *fakeRollupCache) Get(ctx context.Context, window ledger.Window) (*ledger.Rollup, error) {
	return nil, nil
}

func (c *fakeRollupCache) Set(ctx context.Context, window ledger.Window, rollup *ledger.Rollup, ttl time.Duration) error {
	return nil
}

func (c *fakeRollupCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	return c.err
}

func (c *fakeRollupCache) Close() error {
	return nil
}

func (c *fakeRollupCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidated
}

func TestRollupInvalidationHandler_EventTypes(t *testing.T) {
	handler := NewRollupInvalidationHandler(&fakeRollupCache{}, zap.NewNop())

	types := handler.EventTypes()
	assert.Contains(t, types, fulfillment.EventTypeDistributionMatched)
	assert.Contains(t, types, identity.EventTypeIdentityMerged)
	assert.Len(t, types, 2)
}

func TestRollupInvalidationHandler_Handle(t *testing.T) {
	cache := &fakeRollupCache{}
	handler := NewRollupInvalidationHandler(cache, zap.NewNop())

	event := newTestEvent(fulfillment.EventTypeDistributionMatched)
	err := handler.Handle(context.Background(), event)

	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations())
}

func TestRollupInvalidationHandler_Handle_CacheError(t *testing.T) {
	cache := &fakeRollupCache{err: errors.New("redis down")}
	handler := NewRollupInvalidationHandler(cache, zap.NewNop())

	event := newTestEvent(identity.EventTypeIdentityMerged)
	err := handler.Handle(context.Background(), event)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalidate rollup cache")
}

func TestRollupInvalidationHandler_ThroughBus(t *testing.T) {
	cache := &fakeRollupCache{}
	handler := NewRollupInvalidationHandler(cache, zap.NewNop())

	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(handler)

	// A match invalidates, an unrelated event does not
	err := bus.Publish(context.Background(), newTestEvent(fulfillment.EventTypeDistributionMatched))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations())

	err = bus.Publish(context.Background(), newTestEvent(fulfillment.EventTypeDistributionCreated))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations())

	err = bus.Publish(context.Background(), newTestEvent(identity.EventTypeIdentityMerged))
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidations())
}
