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

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// FindByID finds an order by ID
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	var order fulfillment.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindBySourceKey finds an order by its (source, external_key) pair
func (r *GormOrderRepository) FindBySourceKey(ctx context.Context, source identity.Source, externalKey string) (*fulfillment.Order, error) {
	var order fulfillment.Order
	if err := r.db.WithContext(ctx).
		Where("source = ? AND external_key = ?", source, externalKey).
		First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// FindMatchableByNumber finds non-cancelled orders with the normalized number,
// oldest first so the earliest order wins a tie.
func (r *GormOrderRepository) FindMatchableByNumber(ctx context.Context, orderNumberNorm string) ([]fulfillment.Order, error) {
	if orderNumberNorm == "" {
		return []fulfillment.Order{}, nil
	}

	var orders []fulfillment.Order
	if err := r.db.WithContext(ctx).
		Where("order_number_norm = ? AND status <> ?", orderNumberNorm, fulfillment.OrderStatusCancelled).
		Order("order_date ASC, created_at ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindByIdentity finds orders linked to a canonical identity
func (r *GormOrderRepository) FindByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) ([]fulfillment.Order, error) {
	var orders []fulfillment.Order
	query := r.applyFilter(
		r.db.WithContext(ctx).Model(&fulfillment.Order{}).
			Where("canonical_identity_id = ?", identityID),
		filter,
	)

	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindMatchable finds non-cancelled orders for fallback scans, oldest first,
// bounded by limit
func (r *GormOrderRepository) FindMatchable(ctx context.Context, limit int) ([]fulfillment.Order, error) {
	query := r.db.WithContext(ctx).
		Where("status <> ?", fulfillment.OrderStatusCancelled).
		Order("order_date ASC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var orders []fulfillment.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// FindAll finds all orders matching the filter
func (r *GormOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]fulfillment.Order, error) {
	var orders []fulfillment.Order
	query := r.applyFilter(r.db.WithContext(ctx).Model(&fulfillment.Order{}), filter)

	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// Insert creates a new order row. A (source, external_key) collision returns
// shared.ErrAlreadyExists for idempotent feed re-delivery.
func (r *GormOrderRepository) Insert(ctx context.Context, order *fulfillment.Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates an existing order
func (r *GormOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// Count counts orders matching the filter
func (r *GormOrderRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&fulfillment.Order{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus counts orders in the given status
func (r *GormOrderRepository) CountByStatus(ctx context.Context, status fulfillment.OrderStatus) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&fulfillment.Order{}).
		Where("status = ?", status).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateIdentityReferences repoints orders from one identity to another during
// a merge. Returns the number of rows moved.
func (r *GormOrderRepository) UpdateIdentityReferences(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&fulfillment.Order{}).
		Where("canonical_identity_id = ?", fromID).
		Update("canonical_identity_id", toID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExistsBySourceKey checks whether a (source, external_key) pair exists
func (r *GormOrderRepository) ExistsBySourceKey(ctx context.Context, source identity.Source, externalKey string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&fulfillment.Order{}).
		Where("source = ? AND external_key = ?", source, externalKey).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter options to the query
func (r *GormOrderRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
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
		// Default ordering: most recent orders first
		query = query.Order("order_date DESC, created_at DESC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormOrderRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("order_number ILIKE ? OR external_key ILIKE ?",
			searchPattern, searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "source":
			query = query.Where("source = ?", value)
		case "identity_id":
			query = query.Where("canonical_identity_id = ?", value)
		case "order_number_norm":
			query = query.Where("order_number_norm = ?", value)
		case "order_date_from":
			query = query.Where("order_date >= ?", value)
		case "order_date_to":
			query = query.Where("order_date <= ?", value)
		}
	}

	return query
}

// Ensure GormOrderRepository implements OrderRepository
var _ fulfillment.OrderRepository = (*GormOrderRepository)(nil)
