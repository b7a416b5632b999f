package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// GormDistributionRecordRepository implements DistributionRecordRepository using GORM
type GormDistributionRecordRepository struct {
	db *gorm.DB
}

// NewGormDistributionRecordRepository creates a new GormDistributionRecordRepository
func NewGormDistributionRecordRepository(db *gorm.DB) *GormDistributionRecordRepository {
	return &GormDistributionRecordRepository{db: db}
}

// FindByID finds a distribution record by ID
func (r *GormDistributionRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.DistributionRecord, error) {
	var rec fulfillment.DistributionRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindBySourceKey finds a record by its (source, external_key) pair
func (r *GormDistributionRecordRepository) FindBySourceKey(ctx context.Context, source identity.Source, externalKey string) (*fulfillment.DistributionRecord, error) {
	var rec fulfillment.DistributionRecord
	if err := r.db.WithContext(ctx).
		Where("source = ? AND external_key = ?", source, externalKey).
		First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// FindUnmatchedByNumber finds unmatched records with the normalized number,
// in ingestion order
func (r *GormDistributionRecordRepository) FindUnmatchedByNumber(ctx context.Context, orderNumberNorm string) ([]fulfillment.DistributionRecord, error) {
	if orderNumberNorm == "" {
		return []fulfillment.DistributionRecord{}, nil
	}

	var records []fulfillment.DistributionRecord
	if err := r.db.WithContext(ctx).
		Where("matched_order_id IS NULL AND order_number_norm = ?", orderNumberNorm).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindUnmatched finds unmatched records for fallback scans and review
// listings, oldest first, bounded by limit
func (r *GormDistributionRecordRepository) FindUnmatched(ctx context.Context, limit int) ([]fulfillment.DistributionRecord, error) {
	query := r.db.WithContext(ctx).
		Where("matched_order_id IS NULL").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []fulfillment.DistributionRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByOrder finds records matched to an order
func (r *GormDistributionRecordRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]fulfillment.DistributionRecord, error) {
	var records []fulfillment.DistributionRecord
	if err := r.db.WithContext(ctx).
		Where("matched_order_id = ?", orderID).
		Order("created_at ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindByIdentity finds records linked to a canonical identity
func (r *GormDistributionRecordRepository) FindByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) ([]fulfillment.DistributionRecord, error) {
	var records []fulfillment.DistributionRecord
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&fulfillment.DistributionRecord{}).
			Where("canonical_identity_id = ?", identityID),
		filter,
	)

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// FindAll finds all records matching the filter
func (r *GormDistributionRecordRepository) FindAll(ctx context.Context, filter shared.Filter) ([]fulfillment.DistributionRecord, error) {
	var records []fulfillment.DistributionRecord
	query := r.applyFilter(r.db.WithContext(ctx).Model(&fulfillment.DistributionRecord{}), filter)

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Insert creates a new record row. A (source, external_key) collision returns
// shared.ErrAlreadyExists for idempotent feed re-delivery.
func (r *GormDistributionRecordRepository) Insert(ctx context.Context, rec *fulfillment.DistributionRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates an existing record
func (r *GormDistributionRecordRepository) Save(ctx context.Context, rec *fulfillment.DistributionRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// SaveMatch persists a just-linked record. The update only applies while the
// stored matched_order_id is still null, so a concurrent matcher that linked
// the same record first wins and this write surfaces ErrConcurrencyConflict.
// Measurement fields are never part of the write.
func (r *GormDistributionRecordRepository) SaveMatch(ctx context.Context, rec *fulfillment.DistributionRecord) error {
	result := r.db.WithContext(ctx).
		Model(&fulfillment.DistributionRecord{}).
		Where("id = ? AND matched_order_id IS NULL", rec.ID).
		Updates(map[string]interface{}{
			"matched_order_id":      rec.MatchedOrderID,
			"canonical_identity_id": rec.CanonicalIdentityID,
			"identity_display_name": rec.IdentityDisplayName,
			"matched_at":            rec.MatchedAt,
			"version":               rec.Version,
			"updated_at":            rec.UpdatedAt,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// Count counts records matching the filter
func (r *GormDistributionRecordRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&fulfillment.DistributionRecord{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountUnmatched counts records with no matched order
func (r *GormDistributionRecordRepository) CountUnmatched(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&fulfillment.DistributionRecord{}).
		Where("matched_order_id IS NULL").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateIdentityReferences repoints records from one identity to another
// during a merge, refreshing the denormalized display name. Returns the
// number of rows moved.
func (r *GormDistributionRecordRepository) UpdateIdentityReferences(ctx context.Context, fromID, toID uuid.UUID, toDisplayName string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&fulfillment.DistributionRecord{}).
		Where("canonical_identity_id = ?", fromID).
		Updates(map[string]interface{}{
			"canonical_identity_id": toID,
			"identity_display_name": toDisplayName,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// applyFilter applies filter options to the query
func (r *GormDistributionRecordRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
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
		// Default ordering: most recent shipments first
		query = query.Order("ship_date DESC NULLS LAST, created_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormDistributionRecordRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("order_number_raw ILIKE ? OR external_key ILIKE ? OR sku ILIKE ? OR identity_display_name ILIKE ?",
			searchPattern, searchPattern, searchPattern, searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "sku":
			query = query.Where("sku = ?", value)
		case "source":
			query = query.Where("source = ?", value)
		case "lot_canonical":
			query = query.Where("lot_canonical = ?", value)
		case "identity_id":
			query = query.Where("canonical_identity_id = ?", value)
		case "matched":
			if value == true {
				query = query.Where("matched_order_id IS NOT NULL")
			} else {
				query = query.Where("matched_order_id IS NULL")
			}
		case "ship_date_from":
			query = query.Where("ship_date >= ?", value)
		case "ship_date_to":
			query = query.Where("ship_date <= ?", value)
		}
	}

	return query
}

// Ensure GormDistributionRecordRepository implements DistributionRecordRepository
var _ fulfillment.DistributionRecordRepository = (*GormDistributionRecordRepository)(nil)
