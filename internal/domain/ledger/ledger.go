package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/reconcile/backend/internal/domain/shared"
)

// Window bounds a rollup by ship date. A nil bound is open; the zero Window
// is the lifetime view.
type Window struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// IsLifetime reports whether the window carries no bound at all
func (w Window) IsLifetime() bool {
	return w.From == nil && w.To == nil
}

// Key returns a stable cache discriminator for the window
func (w Window) Key() string {
	if w.IsLifetime() {
		return "lifetime"
	}
	from, to := "open", "open"
	if w.From != nil {
		from = w.From.UTC().Format(time.RFC3339)
	}
	if w.To != nil {
		to = w.To.UTC().Format(time.RFC3339)
	}
	return from + ".." + to
}

// Validate checks that the bounds are ordered
func (w Window) Validate() error {
	if w.From != nil && w.To != nil && w.To.Before(*w.From) {
		return shared.NewDomainError("INVALID_WINDOW", "Window end cannot be before window start")
	}
	return nil
}

// Rollup is the aggregate view over matched distribution records. Unmatched
// records contribute nothing; a windowed rollup additionally restricts by
// ship date.
type Rollup struct {
	Window       Window          `json:"window"`
	TotalUnits   decimal.Decimal `json:"total_units"`
	TotalOrders  int64           `json:"total_orders"`
	SKUBreakdown []SKUTotal      `json:"sku_breakdown"`
	NewVsRepeat  NewVsRepeat     `json:"new_vs_repeat"`
}

// SKUTotal is one breakdown line of a rollup
type SKUTotal struct {
	SKU   string          `json:"sku"`
	Units decimal.Decimal `json:"units"`
}

// NewVsRepeat classifies the identities active in a window by lifetime
// distinct matched order count: exactly one order is "new", more than one is
// "repeat". The classification basis ignores the window even when the
// selection is windowed.
type NewVsRepeat struct {
	New    int64 `json:"new"`
	Repeat int64 `json:"repeat"`
}

// LotLedgerRow is one SKU line of the lot ledger. TotalProduced is nil when
// no active reference row exists for the SKU, and Remaining is nil whenever
// TotalProduced is.
type LotLedgerRow struct {
	SKU              string           `json:"sku"`
	TotalProduced    *decimal.Decimal `json:"total_produced,omitempty"`
	TotalDistributed decimal.Decimal  `json:"total_distributed"`
	Remaining        *decimal.Decimal `json:"remaining,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
}

// NewLotLedgerRow computes one ledger line. Remaining is produced minus
// distributed when produced is known. A negative remaining is recorded as a
// data-integrity warning on the row, never surfaced as an error.
func NewLotLedgerRow(sku string, produced *decimal.Decimal, distributed decimal.Decimal) LotLedgerRow {
	row := LotLedgerRow{
		SKU:              sku,
		TotalProduced:    produced,
		TotalDistributed: distributed,
	}
	if produced != nil {
		remaining := produced.Sub(distributed)
		row.Remaining = &remaining
		if remaining.IsNegative() {
			row.Warnings = append(row.Warnings, fmt.Sprintf(
				"distributed quantity %s exceeds produced quantity %s",
				distributed.String(), produced.String()))
		}
	}
	return row
}

// DistributedLot is the matched unit total of one (SKU, canonical lot) pair
type DistributedLot struct {
	SKU          string          `json:"sku"`
	LotCanonical string          `json:"lot_canonical"`
	Units        decimal.Decimal `json:"units"`
}
