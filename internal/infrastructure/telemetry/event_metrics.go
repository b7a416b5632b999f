package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/shared"
)

// EventMetricsHandler feeds the reconciliation counters from domain events
// so application services stay free of metric plumbing. Backlog gauges are
// collected periodically, not here.
type EventMetricsHandler struct {
	metrics *ReconciliationMetrics
	logger  *zap.Logger
}

// NewEventMetricsHandler creates a handler bound to a metrics recorder
func NewEventMetricsHandler(metrics *ReconciliationMetrics, logger *zap.Logger) *EventMetricsHandler {
	return &EventMetricsHandler{
		metrics: metrics,
		logger:  logger,
	}
}

// EventTypes returns the events that carry countable outcomes
func (h *EventMetricsHandler) EventTypes() []string {
	return []string{
		identity.EventTypeIdentityResolved,
		identity.EventTypeIdentityMerged,
		ingest.EventTypeRunCompleted,
	}
}

// Handle translates one event into counter updates. Payloads without a
// mapping are ignored so widening the subscription cannot break delivery.
func (h *EventMetricsHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	switch e := event.(type) {
	case *identity.IdentityResolvedEvent:
		h.metrics.RecordIdentityResolved(ctx, string(e.Tier))
	case *identity.IdentityMergedEvent:
		h.metrics.RecordIdentityMerged(ctx)
	case *ingest.RunCompletedEvent:
		h.recordRun(ctx, e)
	default:
		h.logger.Debug("no metric mapping for event",
			zap.String("event_type", event.EventType()))
	}
	return nil
}

// recordRun folds a terminal run report into the row and match counters.
// Lot reference runs replace the snapshot instead of matching, so they
// update row counters only.
func (h *EventMetricsHandler) recordRun(ctx context.Context, e *ingest.RunCompletedEvent) {
	kind := string(e.Kind)
	source := string(e.Source)

	h.metrics.AddRowsIngested(ctx, kind, source, RowOutcomeCreated, int64(e.Report.Created))
	h.metrics.AddRowsIngested(ctx, kind, source, RowOutcomeDuplicate, int64(e.Report.SkippedDuplicate))
	h.metrics.AddRowsIngested(ctx, kind, source, RowOutcomeFailed, int64(e.Report.Failed))

	switch e.Kind {
	case ingest.RunKindOrders:
		h.metrics.AddDistributionsMatched(ctx, MatchDirectionOrderIngest, int64(e.Report.Matched))
	case ingest.RunKindDistributions:
		h.metrics.AddDistributionsMatched(ctx, MatchDirectionDistributionIngest, int64(e.Report.Matched))
	}
}

// Ensure EventMetricsHandler implements EventHandler
var _ shared.EventHandler = (*EventMetricsHandler)(nil)
