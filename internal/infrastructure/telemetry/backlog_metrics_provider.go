// Package telemetry provides OpenTelemetry integration for metrics collection.
package telemetry

import (
	"context"

	"gorm.io/gorm"
)

// GormBacklogMetricsProvider implements BacklogMetricsProvider using GORM.
// It queries the backlog tables directly for aggregated counts.
type GormBacklogMetricsProvider struct {
	db *gorm.DB
}

// NewGormBacklogMetricsProvider creates a new GormBacklogMetricsProvider.
func NewGormBacklogMetricsProvider(db *gorm.DB) *GormBacklogMetricsProvider {
	return &GormBacklogMetricsProvider{db: db}
}

// CountUnmatchedDistributions returns how many records await an order.
func (p *GormBacklogMetricsProvider) CountUnmatchedDistributions(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("distribution_records").
		Where("matched_order_id IS NULL").
		Count(&count).Error

	return count, err
}

// CountPendingMergeCandidates returns how many merge pairs await review.
func (p *GormBacklogMetricsProvider) CountPendingMergeCandidates(ctx context.Context) (int64, error) {
	var count int64
	err := p.db.WithContext(ctx).
		Table("merge_candidates").
		Where("status = ?", "pending").
		Count(&count).Error

	return count, err
}
