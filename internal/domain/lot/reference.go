package lot

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reconcile/backend/internal/domain/shared"
)

// LotReference is one row of the externally maintained lot reference table:
// the authoritative label of a manufacturing batch plus its production
// metadata. Rows are written only by snapshot sync, never by reconciliation.
// Old rows are kept forever; year-filtered views exclude them instead.
type LotReference struct {
	LotCanonical      string          `gorm:"type:varchar(100);primaryKey"`
	ManufacturingYear int             `gorm:"not null;index"`
	ProducedQuantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	SKU               string          `gorm:"type:varchar(50);not null;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TableName returns the table name for GORM
func (LotReference) TableName() string {
	return "lot_references"
}

// NewLotReference creates a reference row from upstream snapshot data. The
// label is normalized so it matches canonicalized distribution lots.
func NewLotReference(label string, year int, produced decimal.Decimal, sku string) (*LotReference, error) {
	canonical := NormalizeLabel(label)
	if canonical == "" {
		return nil, shared.NewDomainError("INVALID_LOT_LABEL", "Lot label cannot be empty")
	}
	if year <= 0 {
		return nil, shared.NewDomainError("INVALID_LOT_YEAR", "Manufacturing year must be positive")
	}
	if produced.IsNegative() {
		return nil, shared.NewDomainError("INVALID_LOT_QUANTITY", "Produced quantity cannot be negative")
	}
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if len(sku) > 50 {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot exceed 50 characters")
	}

	now := time.Now()
	return &LotReference{
		LotCanonical:      canonical,
		ManufacturingYear: year,
		ProducedQuantity:  produced,
		SKU:               sku,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// IsActive reports whether the lot participates in views filtered at minYear
func (r *LotReference) IsActive(minYear int) bool {
	return r.ManufacturingYear >= minYear
}
