package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// LedgerRepository aggregates matched distribution records. Every query
// filters on matched_order_id being set; unmatched rows never reach a
// ledger figure.
type LedgerRepository interface {
	// SumMatchedUnits returns the total quantity shipped in the window
	SumMatchedUnits(ctx context.Context, window Window) (decimal.Decimal, error)

	// CountDistinctMatchedOrders counts distinct normalized order numbers
	// across the orders linked from matched records in the window
	CountDistinctMatchedOrders(ctx context.Context, window Window) (int64, error)

	// SKUBreakdown returns per-SKU unit totals for the window
	SKUBreakdown(ctx context.Context, window Window) ([]SKUTotal, error)

	// ClassifyIdentities buckets the identities with matched activity in the
	// window by their lifetime distinct matched order count
	ClassifyIdentities(ctx context.Context, window Window) (NewVsRepeat, error)

	// DistributedByLot returns unit totals per SKU and canonical lot over all
	// matched records
	DistributedByLot(ctx context.Context) ([]DistributedLot, error)
}
