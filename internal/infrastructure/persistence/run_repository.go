package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/shared"
	"github.com/reconcile/backend/internal/infrastructure/persistence/models"
)

// GormRunRepository implements RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// FindByID finds a run by ID
func (r *GormRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*ingest.Run, error) {
	var model models.RunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns runs with pagination and filtering, newest first
func (r *GormRunRepository) FindAll(ctx context.Context, filter ingest.RunFilter, page, pageSize int) (*ingest.RunListResult, error) {
	query := r.db.WithContext(ctx).Model(&models.RunModel{})

	// Apply filters
	query = r.applyFilters(query, filter)

	// Get total count
	var totalCount int64
	if err := query.Count(&totalCount).Error; err != nil {
		return nil, err
	}

	// Apply pagination
	if page > 0 && pageSize > 0 {
		offset := (page - 1) * pageSize
		query = query.Offset(offset).Limit(pageSize)
	}

	// Default ordering: most recent first
	query = query.Order("started_at DESC NULLS LAST, created_at DESC")

	var runModels []models.RunModel
	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}

	// Convert to domain aggregates
	runs := make([]*ingest.Run, len(runModels))
	for i, model := range runModels {
		runs[i] = model.ToDomain()
	}

	return &ingest.RunListResult{
		Items:      runs,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// FindByStatus finds all runs with a specific status
func (r *GormRunRepository) FindByStatus(ctx context.Context, status ingest.RunStatus) ([]*ingest.Run, error) {
	var runModels []models.RunModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*ingest.Run, len(runModels))
	for i, model := range runModels {
		runs[i] = model.ToDomain()
	}
	return runs, nil
}

// FindStale finds non-terminal runs started before the cutoff, for recovery
// after a restart. A pending run that never started is judged by creation time.
func (r *GormRunRepository) FindStale(ctx context.Context, cutoff time.Time) ([]*ingest.Run, error) {
	var runModels []models.RunModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []ingest.RunStatus{ingest.RunStatusPending, ingest.RunStatusProcessing}).
		Where("COALESCE(started_at, created_at) < ?", cutoff).
		Order("created_at ASC").
		Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]*ingest.Run, len(runModels))
	for i, model := range runModels {
		runs[i] = model.ToDomain()
	}
	return runs, nil
}

// Save saves a run (create or update)
func (r *GormRunRepository) Save(ctx context.Context, run *ingest.Run) error {
	model := models.RunModelFromDomain(run)
	return r.db.WithContext(ctx).Save(model).Error
}

// Delete deletes a run by ID
func (r *GormRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.RunModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// applyFilters applies filter options to the query
func (r *GormRunRepository) applyFilters(query *gorm.DB, filter ingest.RunFilter) *gorm.DB {
	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Source != nil {
		query = query.Where("source = ?", *filter.Source)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.StartedFrom != nil {
		query = query.Where("started_at >= ?", *filter.StartedFrom)
	}
	if filter.StartedTo != nil {
		query = query.Where("started_at <= ?", *filter.StartedTo)
	}
	return query
}

// Compile-time interface compliance check
var _ ingest.RunRepository = (*GormRunRepository)(nil)
