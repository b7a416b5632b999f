package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reconcile/backend/internal/domain/lot"
	"github.com/reconcile/backend/internal/domain/shared"
)

// GormLotReferenceRepository implements LotReferenceRepository using GORM
type GormLotReferenceRepository struct {
	db *gorm.DB
}

// NewGormLotReferenceRepository creates a new GormLotReferenceRepository
func NewGormLotReferenceRepository(db *gorm.DB) *GormLotReferenceRepository {
	return &GormLotReferenceRepository{db: db}
}

// FindByCanonical retrieves one reference row by canonical label
func (r *GormLotReferenceRepository) FindByCanonical(ctx context.Context, canonical string) (*lot.LotReference, error) {
	var ref lot.LotReference
	if err := r.db.WithContext(ctx).
		Where("lot_canonical = ?", canonical).
		First(&ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ref, nil
}

// FindByCanonicals retrieves the rows for a set of canonical labels
func (r *GormLotReferenceRepository) FindByCanonicals(ctx context.Context, canonicals []string) ([]lot.LotReference, error) {
	if len(canonicals) == 0 {
		return []lot.LotReference{}, nil
	}

	var refs []lot.LotReference
	if err := r.db.WithContext(ctx).
		Where("lot_canonical IN ?", canonicals).
		Order("lot_canonical ASC").
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// FindByMinYear retrieves rows with manufacturing year at or above minYear
func (r *GormLotReferenceRepository) FindByMinYear(ctx context.Context, minYear int) ([]lot.LotReference, error) {
	var refs []lot.LotReference
	if err := r.db.WithContext(ctx).
		Where("manufacturing_year >= ?", minYear).
		Order("lot_canonical ASC").
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// FindAll retrieves every reference row
func (r *GormLotReferenceRepository) FindAll(ctx context.Context) ([]lot.LotReference, error) {
	var refs []lot.LotReference
	if err := r.db.WithContext(ctx).
		Order("lot_canonical ASC").
		Find(&refs).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

// UpsertAll inserts or updates rows keyed by canonical label. Re-syncing the
// same snapshot is a no-op apart from updated_at.
func (r *GormLotReferenceRepository) UpsertAll(ctx context.Context, refs []lot.LotReference) error {
	if len(refs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "lot_canonical"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"manufacturing_year", "produced_quantity", "sku", "updated_at",
			}),
		}).
		Create(&refs).Error
}

// Count returns the number of reference rows
func (r *GormLotReferenceRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&lot.LotReference{}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormLotReferenceRepository implements LotReferenceRepository
var _ lot.LotReferenceRepository = (*GormLotReferenceRepository)(nil)
