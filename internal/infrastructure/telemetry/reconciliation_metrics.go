// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go.opentelemetry.io/otel/metric"
)

// ReconciliationMetrics tracks the reconciliation pipeline: how identities
// resolve, how rows flow in, how distributions link to orders, and how the
// two review backlogs develop.
type ReconciliationMetrics struct {
	meter  metric.Meter
	logger *zap.Logger

	// Counter metrics (monotonically increasing)
	identityResolvedTotal    *Counter
	rowsIngestedTotal        *Counter
	distributionMatchedTotal *Counter
	identityMergedTotal      *Counter

	// Gauge metrics (point-in-time values)
	unmatchedDistributions *Gauge
	mergeQueueDepth        *Gauge

	// Periodic collector
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once

	// Data provider for periodic collection
	backlogProvider BacklogMetricsProvider
}

// BacklogMetricsProvider provides backlog sizes for periodic gauge
// collection. The interface keeps the telemetry layer from depending on
// the fulfillment and identity domains directly.
type BacklogMetricsProvider interface {
	// CountUnmatchedDistributions returns how many records await an order
	CountUnmatchedDistributions(ctx context.Context) (int64, error)

	// CountPendingMergeCandidates returns how many merge pairs await review
	CountPendingMergeCandidates(ctx context.Context) (int64, error)
}

// ReconciliationMetricsConfig holds configuration for reconciliation metrics.
type ReconciliationMetricsConfig struct {
	Meter           metric.Meter
	Logger          *zap.Logger
	CollectInterval time.Duration // Default: 5 minutes
	BacklogProvider BacklogMetricsProvider
}

// MatchDirection labels which ingest side triggered a match.
type MatchDirection string

const (
	MatchDirectionOrderIngest        MatchDirection = "order_ingest"
	MatchDirectionDistributionIngest MatchDirection = "distribution_ingest"
)

// RowOutcome labels what became of an ingested row.
type RowOutcome string

const (
	RowOutcomeCreated   RowOutcome = "created"
	RowOutcomeDuplicate RowOutcome = "duplicate"
	RowOutcomeFailed    RowOutcome = "failed"
)

// NewReconciliationMetrics creates a new ReconciliationMetrics instance.
func NewReconciliationMetrics(cfg ReconciliationMetricsConfig) (*ReconciliationMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rm := &ReconciliationMetrics{
		meter:           cfg.Meter,
		logger:          logger,
		stopChan:        make(chan struct{}),
		backlogProvider: cfg.BacklogProvider,
	}

	var err error

	rm.identityResolvedTotal, err = NewCounter(
		cfg.Meter,
		"recon_identity_resolved_total",
		"Total number of identity resolutions by matching tier",
		"{resolutions}",
	)
	if err != nil {
		return nil, err
	}

	rm.rowsIngestedTotal, err = NewCounter(
		cfg.Meter,
		"recon_rows_ingested_total",
		"Total number of ingested rows by kind and outcome",
		"{rows}",
	)
	if err != nil {
		return nil, err
	}

	rm.distributionMatchedTotal, err = NewCounter(
		cfg.Meter,
		"recon_distribution_matched_total",
		"Total number of distribution records linked to an order",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	rm.identityMergedTotal, err = NewCounter(
		cfg.Meter,
		"recon_identity_merged_total",
		"Total number of approved identity merges",
		"{merges}",
	)
	if err != nil {
		return nil, err
	}

	rm.unmatchedDistributions, err = NewGauge(
		cfg.Meter,
		"recon_unmatched_distributions",
		"Current number of distribution records awaiting an order",
		"{records}",
	)
	if err != nil {
		return nil, err
	}

	rm.mergeQueueDepth, err = NewGauge(
		cfg.Meter,
		"recon_merge_queue_depth",
		"Current number of merge candidates awaiting review",
		"{candidates}",
	)
	if err != nil {
		return nil, err
	}

	return rm, nil
}

// RecordIdentityResolved records one identity resolution.
// Tier is the matching tier string (exact, strong, weak, none).
func (rm *ReconciliationMetrics) RecordIdentityResolved(ctx context.Context, tier string) {
	rm.identityResolvedTotal.Inc(ctx,
		AttrMatchTier.String(tier),
	)
}

// RecordRowIngested records one ingested row with its outcome.
// Kind distinguishes the order feed from the distribution feed.
func (rm *ReconciliationMetrics) RecordRowIngested(ctx context.Context, kind, source string, outcome RowOutcome) {
	rm.rowsIngestedTotal.Inc(ctx,
		AttrIngestKind.String(kind),
		AttrIngestSource.String(source),
		AttrRowOutcome.String(string(outcome)),
	)
}

// AddRowsIngested records a batch of rows that share one outcome.
func (rm *ReconciliationMetrics) AddRowsIngested(ctx context.Context, kind, source string, outcome RowOutcome, count int64) {
	if count <= 0 {
		return
	}
	rm.rowsIngestedTotal.Add(ctx, count,
		AttrIngestKind.String(kind),
		AttrIngestSource.String(source),
		AttrRowOutcome.String(string(outcome)),
	)
}

// RecordDistributionMatched records one record-to-order link.
// Direction says which ingest side triggered the match.
func (rm *ReconciliationMetrics) RecordDistributionMatched(ctx context.Context, direction MatchDirection) {
	rm.distributionMatchedTotal.Inc(ctx,
		AttrMatchDirection.String(string(direction)),
	)
}

// AddDistributionsMatched records a batch of links that share one direction.
func (rm *ReconciliationMetrics) AddDistributionsMatched(ctx context.Context, direction MatchDirection, count int64) {
	if count <= 0 {
		return
	}
	rm.distributionMatchedTotal.Add(ctx, count,
		AttrMatchDirection.String(string(direction)),
	)
}

// RecordIdentityMerged records one approved merge.
func (rm *ReconciliationMetrics) RecordIdentityMerged(ctx context.Context) {
	rm.identityMergedTotal.Inc(ctx)
}

// RecordUnmatchedDistributions records the current unmatched backlog size.
func (rm *ReconciliationMetrics) RecordUnmatchedDistributions(ctx context.Context, count int64) {
	rm.unmatchedDistributions.Record(ctx, count)
}

// RecordMergeQueueDepth records the current review queue size.
func (rm *ReconciliationMetrics) RecordMergeQueueDepth(ctx context.Context, count int64) {
	rm.mergeQueueDepth.Record(ctx, count)
}

// StartPeriodicCollection starts periodic collection of the backlog gauges.
// It is non-blocking; use Stop() to stop collection.
func (rm *ReconciliationMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	rm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}

		go rm.runPeriodicCollection(ctx, interval)
	})
}

// runPeriodicCollection runs the periodic collection loop.
func (rm *ReconciliationMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	rm.collectBacklogMetrics(ctx)

	for {
		select {
		case <-rm.stopChan:
			rm.logger.Info("Stopping periodic reconciliation metrics collection")
			return
		case <-ctx.Done():
			rm.logger.Info("Context cancelled, stopping periodic reconciliation metrics collection")
			return
		case <-ticker.C:
			rm.collectBacklogMetrics(ctx)
		}
	}
}

// collectBacklogMetrics collects the two backlog gauges.
func (rm *ReconciliationMetrics) collectBacklogMetrics(ctx context.Context) {
	if rm.backlogProvider == nil {
		rm.logger.Debug("No backlog provider configured, skipping backlog metrics collection")
		return
	}

	unmatched, err := rm.backlogProvider.CountUnmatchedDistributions(ctx)
	if err != nil {
		rm.logger.Warn("Failed to count unmatched distributions", zap.Error(err))
	} else {
		rm.RecordUnmatchedDistributions(ctx, unmatched)
	}

	pending, err := rm.backlogProvider.CountPendingMergeCandidates(ctx)
	if err != nil {
		rm.logger.Warn("Failed to count pending merge candidates", zap.Error(err))
	} else {
		rm.RecordMergeQueueDepth(ctx, pending)
	}
}

// Stop stops the periodic collection.
func (rm *ReconciliationMetrics) Stop() {
	rm.stopOnce.Do(func() {
		close(rm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewReconciliationMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
