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

// GormCanonicalIdentityRepository implements CanonicalIdentityRepository using GORM
type GormCanonicalIdentityRepository struct {
	db *gorm.DB
}

// NewGormCanonicalIdentityRepository creates a new GormCanonicalIdentityRepository
func NewGormCanonicalIdentityRepository(db *gorm.DB) *GormCanonicalIdentityRepository {
	return &GormCanonicalIdentityRepository{db: db}
}

// FindByID finds an identity by its ID
func (r *GormCanonicalIdentityRepository) FindByID(ctx context.Context, id uuid.UUID) (*identity.CanonicalIdentity, error) {
	var ident identity.CanonicalIdentity
	if err := r.db.WithContext(ctx).First(&ident, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// FindByCanonicalKey finds the identity holding the given canonical key
func (r *GormCanonicalIdentityRepository) FindByCanonicalKey(ctx context.Context, key string) (*identity.CanonicalIdentity, error) {
	var ident identity.CanonicalIdentity
	if err := r.db.WithContext(ctx).
		Where("canonical_key = ?", key).
		First(&ident).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ident, nil
}

// FindByKeyPrefix finds identities whose canonical key starts with the prefix.
// Canonical keys are uppercase alphanumeric, so the prefix needs no LIKE
// escaping. Oldest rows first keeps the scan deterministic when it is capped.
func (r *GormCanonicalIdentityRepository) FindByKeyPrefix(ctx context.Context, prefix string, limit int) ([]identity.CanonicalIdentity, error) {
	if prefix == "" {
		return []identity.CanonicalIdentity{}, nil
	}

	query := r.db.WithContext(ctx).
		Where("canonical_key LIKE ?", prefix+"%").
		Order("created_at ASC, canonical_key ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var identities []identity.CanonicalIdentity
	if err := query.Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// FindByEmailDomain finds identities whose stored email ends in the domain
func (r *GormCanonicalIdentityRepository) FindByEmailDomain(ctx context.Context, domain string) ([]identity.CanonicalIdentity, error) {
	if domain == "" {
		return []identity.CanonicalIdentity{}, nil
	}

	var identities []identity.CanonicalIdentity
	if err := r.db.WithContext(ctx).
		Where("email LIKE ?", "%@"+strings.ToLower(domain)).
		Order("created_at ASC").
		Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// FindByIDs finds multiple identities by their IDs
func (r *GormCanonicalIdentityRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]identity.CanonicalIdentity, error) {
	if len(ids) == 0 {
		return []identity.CanonicalIdentity{}, nil
	}

	var identities []identity.CanonicalIdentity
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// FindAll finds all identities matching the filter
func (r *GormCanonicalIdentityRepository) FindAll(ctx context.Context, filter shared.Filter) ([]identity.CanonicalIdentity, error) {
	var identities []identity.CanonicalIdentity
	query := r.applyFilter(r.db.WithContext(ctx).Model(&identity.CanonicalIdentity{}), filter)

	if err := query.Find(&identities).Error; err != nil {
		return nil, err
	}
	return identities, nil
}

// Insert creates a new identity row. A canonical-key collision returns
// shared.ErrAlreadyExists so callers can re-query and adopt the winner.
func (r *GormCanonicalIdentityRepository) Insert(ctx context.Context, ident *identity.CanonicalIdentity) error {
	if err := r.db.WithContext(ctx).Create(ident).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Save updates an existing identity
func (r *GormCanonicalIdentityRepository) Save(ctx context.Context, ident *identity.CanonicalIdentity) error {
	return r.db.WithContext(ctx).Save(ident).Error
}

// Delete removes an identity (merge cleanup only)
func (r *GormCanonicalIdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&identity.CanonicalIdentity{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Count counts identities matching the filter
func (r *GormCanonicalIdentityRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&identity.CanonicalIdentity{})
	query = r.applyFilterWithoutPagination(query, filter)

	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ExistsByCanonicalKey checks whether a canonical key is already taken
func (r *GormCanonicalIdentityRepository) ExistsByCanonicalKey(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&identity.CanonicalIdentity{}).
		Where("canonical_key = ?", key).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// applyFilter applies filter options to the query
func (r *GormCanonicalIdentityRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
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
		// Default ordering
		query = query.Order("display_name ASC, created_at ASC")
	}

	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormCanonicalIdentityRepository) applyFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	// Apply search
	if filter.Search != "" {
		searchPattern := "%" + filter.Search + "%"
		query = query.Where("display_name ILIKE ? OR canonical_key ILIKE ? OR email ILIKE ?",
			searchPattern, searchPattern, searchPattern)
	}

	// Apply additional filters
	for key, value := range filter.Filters {
		switch key {
		case "provenance":
			query = query.Where("provenance = ?", value)
		case "state":
			query = query.Where("state = ?", value)
		case "city":
			query = query.Where("city = ?", value)
		case "has_email":
			if value == true {
				query = query.Where("email <> ''")
			} else {
				query = query.Where("email = ''")
			}
		case "has_address":
			if value == true {
				query = query.Where("city <> '' AND state <> '' AND postal_code <> ''")
			} else {
				query = query.Where("city = '' OR state = '' OR postal_code = ''")
			}
		}
	}

	return query
}

// Ensure GormCanonicalIdentityRepository implements CanonicalIdentityRepository
var _ identity.CanonicalIdentityRepository = (*GormCanonicalIdentityRepository)(nil)
