package persistence

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/reconcile/backend/internal/domain/ledger"
)

// GormLedgerRepository implements LedgerRepository using GORM. Every query
// starts from matched distribution records; window bounds apply to ship_date,
// so records without one never appear in a windowed figure.
type GormLedgerRepository struct {
	db *gorm.DB
}

// NewGormLedgerRepository creates a new GormLedgerRepository
func NewGormLedgerRepository(db *gorm.DB) *GormLedgerRepository {
	return &GormLedgerRepository{db: db}
}

// matchedInWindow scopes a query to matched records inside the window
func (r *GormLedgerRepository) matchedInWindow(ctx context.Context, window ledger.Window) *gorm.DB {
	query := r.db.WithContext(ctx).Table("distribution_records dr").
		Where("dr.matched_order_id IS NOT NULL")
	if window.From != nil {
		query = query.Where("dr.ship_date >= ?", *window.From)
	}
	if window.To != nil {
		query = query.Where("dr.ship_date <= ?", *window.To)
	}
	return query
}

// SumMatchedUnits returns the total quantity shipped in the window
func (r *GormLedgerRepository) SumMatchedUnits(ctx context.Context, window ledger.Window) (decimal.Decimal, error) {
	type sumResult struct {
		TotalUnits decimal.Decimal
	}

	var result sumResult
	if err := r.matchedInWindow(ctx, window).
		Select("COALESCE(SUM(dr.quantity), 0) as total_units").
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.TotalUnits, nil
}

// CountDistinctMatchedOrders counts distinct normalized order numbers across
// the orders linked from matched records in the window. Two feed rows of the
// same commercial order count once.
func (r *GormLedgerRepository) CountDistinctMatchedOrders(ctx context.Context, window ledger.Window) (int64, error) {
	type countResult struct {
		TotalOrders int64
	}

	var result countResult
	if err := r.matchedInWindow(ctx, window).
		Select("COUNT(DISTINCT o.order_number_norm) as total_orders").
		Joins("JOIN orders o ON o.id = dr.matched_order_id").
		Scan(&result).Error; err != nil {
		return 0, err
	}
	return result.TotalOrders, nil
}

// SKUBreakdown returns per-SKU unit totals for the window, biggest first
func (r *GormLedgerRepository) SKUBreakdown(ctx context.Context, window ledger.Window) ([]ledger.SKUTotal, error) {
	type skuResult struct {
		SKU   string
		Units decimal.Decimal
	}

	var results []skuResult
	if err := r.matchedInWindow(ctx, window).
		Select("dr.sku as sku, COALESCE(SUM(dr.quantity), 0) as units").
		Group("dr.sku").
		Order("units DESC, sku ASC").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	breakdown := make([]ledger.SKUTotal, len(results))
	for i, res := range results {
		breakdown[i] = ledger.SKUTotal{SKU: res.SKU, Units: res.Units}
	}
	return breakdown, nil
}

// ClassifyIdentities buckets the identities with matched activity in the
// window by their lifetime distinct matched order count. The window selects
// who is counted; the one-versus-many grading always looks at the whole
// history.
func (r *GormLedgerRepository) ClassifyIdentities(ctx context.Context, window ledger.Window) (ledger.NewVsRepeat, error) {
	active := r.db.WithContext(ctx).Table("distribution_records").
		Select("DISTINCT canonical_identity_id").
		Where("matched_order_id IS NOT NULL").
		Where("canonical_identity_id IS NOT NULL")
	if window.From != nil {
		active = active.Where("ship_date >= ?", *window.From)
	}
	if window.To != nil {
		active = active.Where("ship_date <= ?", *window.To)
	}

	lifetime := r.db.WithContext(ctx).Table("distribution_records dr").
		Select("dr.canonical_identity_id as identity_id, COUNT(DISTINCT o.order_number_norm) as order_count").
		Joins("JOIN orders o ON o.id = dr.matched_order_id").
		Where("dr.matched_order_id IS NOT NULL").
		Where("dr.canonical_identity_id IN (?)", active).
		Group("dr.canonical_identity_id")

	type classifyResult struct {
		NewCount    int64
		RepeatCount int64
	}

	var result classifyResult
	if err := r.db.WithContext(ctx).
		Table("(?) as lifetime", lifetime).
		Select(`
			COALESCE(SUM(CASE WHEN lifetime.order_count = 1 THEN 1 ELSE 0 END), 0) as new_count,
			COALESCE(SUM(CASE WHEN lifetime.order_count > 1 THEN 1 ELSE 0 END), 0) as repeat_count
		`).
		Scan(&result).Error; err != nil {
		return ledger.NewVsRepeat{}, err
	}

	return ledger.NewVsRepeat{New: result.NewCount, Repeat: result.RepeatCount}, nil
}

// DistributedByLot returns unit totals per SKU and canonical lot over all
// matched records. Records whose lot never canonicalized group under the
// empty label; the lot ledger reports them as unknown.
func (r *GormLedgerRepository) DistributedByLot(ctx context.Context) ([]ledger.DistributedLot, error) {
	type lotResult struct {
		SKU          string
		LotCanonical string
		Units        decimal.Decimal
	}

	var results []lotResult
	if err := r.db.WithContext(ctx).Table("distribution_records").
		Select("sku, lot_canonical, COALESCE(SUM(quantity), 0) as units").
		Where("matched_order_id IS NOT NULL").
		Group("sku, lot_canonical").
		Order("sku ASC, lot_canonical ASC").
		Scan(&results).Error; err != nil {
		return nil, err
	}

	lots := make([]ledger.DistributedLot, len(results))
	for i, res := range results {
		lots[i] = ledger.DistributedLot{
			SKU:          res.SKU,
			LotCanonical: res.LotCanonical,
			Units:        res.Units,
		}
	}
	return lots, nil
}

// Ensure GormLedgerRepository implements LedgerRepository
var _ ledger.LedgerRepository = (*GormLedgerRepository)(nil)
