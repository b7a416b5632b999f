package event

import (
	"context"
	"fmt"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ledger"
	"github.com/reconcile/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// RollupInvalidationHandler drops cached rollups when the matched data
// behind them changes. Rollups aggregate matched records only, so a new
// match or an identity merge is what makes a cached window stale.
type RollupInvalidationHandler struct {
	cache  ledger.RollupCache
	logger *zap.Logger
}

// NewRollupInvalidationHandler creates a handler bound to a rollup cache
func NewRollupInvalidationHandler(cache ledger.RollupCache, logger *zap.Logger) *RollupInvalidationHandler {
	return &RollupInvalidationHandler{
		cache:  cache,
		logger: logger,
	}
}

// EventTypes returns the events that can change matched figures
func (h *RollupInvalidationHandler) EventTypes() []string {
	return []string{
		fulfillment.EventTypeDistributionMatched,
		identity.EventTypeIdentityMerged,
	}
}

// Handle invalidates every cached rollup window
func (h *RollupInvalidationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if err := h.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate rollup cache: %w", err)
	}

	h.logger.Debug("rollup cache invalidated",
		zap.String("event_type", event.EventType()),
		zap.String("aggregate_id", event.AggregateID().String()),
	)
	return nil
}

// Ensure RollupInvalidationHandler implements EventHandler
var _ shared.EventHandler = (*RollupInvalidationHandler)(nil)
