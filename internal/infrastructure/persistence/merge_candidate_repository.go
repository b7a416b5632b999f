package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// GormMergeCandidateRepository implements MergeCandidateRepository using GORM
type GormMergeCandidateRepository struct {
	db *gorm.DB
}

// NewGormMergeCandidateRepository creates a new GormMergeCandidateRepository
func NewGormMergeCandidateRepository(db *gorm.DB) *GormMergeCandidateRepository {
	return &GormMergeCandidateRepository{db: db}
}

// FindByID finds a merge candidate by its ID
func (r *GormMergeCandidateRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.MergeCandidate, error) {
	var mc identity.MergeCandidate
	if err := r.db.WithContext(ctx).First(&mc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &mc, nil
}

// FindByPair finds the candidate for an identity pair in either order
func (r *GormMergeCandidateRepository) FindByPair(ctx context.Context, idA, idB uuid.UUID) (*identity.MergeCandidate, error) {
	var mc identity.MergeCandidate
	if err := r.db.WithContext(ctx).
		Where("(identity_a = ? AND identity_b = ?) OR (identity_a = ? AND identity_b = ?)",
			idA, idB, idB, idA).
		First(&mc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &mc, nil
}

// FindByStatus finds candidates in the given review state
func (r *GormMergeCandidateRepository) FindByStatus(ctx context.Context, status identity.MergeCandidateStatus, filter shared.Filter) ([]identity.MergeCandidate, error) {
	var candidates []identity.MergeCandidate
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&identity.MergeCandidate{}).
			Where("status = ?", status),
		filter,
	)

	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// FindPendingByIdentity finds pending candidates referencing the identity
func (r *GormMergeCandidateRepository) FindPendingByIdentity(ctx context.Context, identityID uuid.UUID) ([]identity.MergeCandidate, error) {
	var candidates []identity.MergeCandidate
	if err := r.db.WithContext(ctx).
		Where("status = ? AND (identity_a = ? OR identity_b = ?)",
			identity.MergeStatusPending, identityID, identityID).
		Order("created_at ASC").
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// FindAll finds all candidates matching the filter
func (r *GormMergeCandidateRepository) FindAll(ctx context.Context, filter shared.Filter) ([]identity.MergeCandidate, error) {
	var candidates []identity.MergeCandidate
	query := r.applyFilter(r.db.WithContext(ctx).Model(&identity.MergeCandidate{}), filter)

	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

// Insert creates a new candidate row. A pair collision returns
// shared.ErrAlreadyExists, which enqueue treats as success.
func (r *GormMergeCandidateRepository) Insert(ctx context.Context, mc *identity.MergeCandidate) error {
	if err := r.db.WithContext(ctx).Create(mc).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates an existing candidate
func (r *GormMergeCandidateRepository) Save(ctx context.Context, mc *identity.MergeCandidate) error {
	return r.db.WithContext(ctx).Save(mc).Error
}

// Count counts candidates matching the filter
func (r *GormMergeCandidateRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&identity.MergeCandidate{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus counts candidates in the given review state
func (r *GormMergeCandidateRepository) CountByStatus(ctx context.Context, status identity.MergeCandidateStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&identity.MergeCandidate{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies filter options to the query
func (r *GormMergeCandidateRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	// Apply pagination
	if filter.Page > 0 && filter.PageSize > 0 {
		offset := (filter.Page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	// Apply ordering
	if filter.OrderBy != "" {
		orderDir := "ASC"
		if strings.ToLower(filter.OrderDir) == "desc" {
			orderDir = "DESC"
		}
		query = query.Order(filter.OrderBy + " " + orderDir)
	} else {
		// Review queue default: oldest candidates first
		query = query.Order("created_at ASC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormMergeCandidateRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("reason ILIKE ?", searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "confidence":
			query = query.Where("confidence = ?", value)
		case "identity_id":
			query = query.Where("identity_a = ? OR identity_b = ?", value, value)
		}
	}

	return query
}

// Ensure GormMergeCandidateRepository implements MergeCandidateRepository
var _ identity.MergeCandidateRepository = (*GormMergeCandidateRepository)(nil)
