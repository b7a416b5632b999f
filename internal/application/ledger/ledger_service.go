package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/ledger"
	"github.com/reconcile/backend/internal/domain/lot"
)

// DefaultRollupTTL bounds how stale a cached rollup may get when an
// event-driven invalidation is missed.
const DefaultRollupTTL = 5 * time.Minute

// LedgerConfig tunes ledger computation
type LedgerConfig struct {
	// DefaultMinYear is the manufacturing-year cutoff applied when the
	// caller does not pass one. Zero disables the cutoff.
	DefaultMinYear int

	// RollupTTL bounds cached rollup staleness
	RollupTTL time.Duration
}

// withDefaults replaces zero values with the package defaults
func (c LedgerConfig) withDefaults() LedgerConfig {
	if c.RollupTTL <= 0 {
		c.RollupTTL = DefaultRollupTTL
	}
	return c
}

// SnapshotProvider hands out the current lot reference snapshot. A ledger
// computation takes one snapshot and holds it for its whole run; a sync
// landing mid-computation is not observed.
type SnapshotProvider interface {
	Current(ctx context.Context) (lot.RefSnapshot, error)
}

// LotLedgerResult is the lot ledger for one manufacturing-year cutoff
type LotLedgerResult struct {
	MinYear int                   `json:"min_year"`
	Rows    []ledger.LotLedgerRow `json:"rows"`
}

// LedgerService computes derived views over matched distribution records.
// Unmatched records never reach a figure here; matching and merging change
// the numbers, computation never changes the records.
type LedgerService struct {
	ledgerRepo ledger.LedgerRepository
	snapshots  SnapshotProvider
	cache      ledger.RollupCache
	logger     *zap.Logger
	cfg        LedgerConfig
}

// NewLedgerService creates a new ledger service. The cache is optional.
func NewLedgerService(
	ledgerRepo ledger.LedgerRepository,
	snapshots SnapshotProvider,
	cache ledger.RollupCache,
	logger *zap.Logger,
	cfg LedgerConfig,
) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		ledgerRepo: ledgerRepo,
		snapshots:  snapshots,
		cache:      cache,
		logger:     logger,
		cfg:        cfg.withDefaults(),
	}
}

// ComputeRollup aggregates matched distribution activity in the window.
// Total orders counts distinct normalized order numbers, and the
// new-vs-repeat classification is by lifetime order count regardless of the
// window. Cache failures fall through to the repository.
func (s *LedgerService) ComputeRollup(ctx context.Context, window ledger.Window) (*ledger.Rollup, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, window)
		if err != nil {
			s.logger.Warn("rollup cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	totalUnits, err := s.ledgerRepo.SumMatchedUnits(ctx, window)
	if err != nil {
		return nil, err
	}
	totalOrders, err := s.ledgerRepo.CountDistinctMatchedOrders(ctx, window)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.ledgerRepo.SKUBreakdown(ctx, window)
	if err != nil {
		return nil, err
	}
	newVsRepeat, err := s.ledgerRepo.ClassifyIdentities(ctx, window)
	if err != nil {
		return nil, err
	}

	rollup := &ledger.Rollup{
		Window:       window,
		TotalUnits:   totalUnits,
		TotalOrders:  totalOrders,
		SKUBreakdown: breakdown,
		NewVsRepeat:  newVsRepeat,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, window, rollup, s.cfg.RollupTTL); err != nil {
			s.logger.Warn("rollup cache write failed", zap.Error(err))
		}
	}

	return rollup, nil
}

// InvalidateRollups drops every cached rollup. Wired to the events that
// change ledger figures: a distribution matching and identities merging.
func (s *LedgerService) InvalidateRollups(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn("rollup cache invalidation failed", zap.Error(err))
	}
}

// ComputeLotLedger builds the per-SKU produced-versus-distributed view for
// lots manufactured at or after minYear. Zero minYear falls back to the
// configured cutoff; zero again means no cutoff.
//
// The produced side sums active reference rows by their recorded SKU. The
// distributed side re-resolves each matched lot through the snapshot and
// counts only lots with an active reference row; unknown lots stay tracked
// in the underlying records but drop out of the year view. A distribution
// whose observed SKU disagrees with its lot's reference row keeps its units
// under the observed SKU and carries a warning.
func (s *LedgerService) ComputeLotLedger(ctx context.Context, minYear int) (*LotLedgerResult, error) {
	if minYear <= 0 {
		minYear = s.cfg.DefaultMinYear
	}

	snapshot, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}

	distributed, err := s.ledgerRepo.DistributedByLot(ctx)
	if err != nil {
		return nil, err
	}

	producedBySKU := make(map[string]decimal.Decimal)
	for _, ref := range snapshot.References() {
		if !ref.IsActive(minYear) {
			continue
		}
		producedBySKU[ref.SKU] = producedBySKU[ref.SKU].Add(ref.ProducedQuantity)
	}

	distributedBySKU := make(map[string]decimal.Decimal)
	warningsBySKU := make(map[string][]string)
	for _, row := range distributed {
		info := snapshot.Canonicalize(row.LotCanonical)
		ref, ok := snapshot.Ref(info.Canonical)
		if !ok {
			s.logger.Warn("distributed lot has no reference row",
				zap.String("sku", row.SKU),
				zap.String("lot_canonical", info.Canonical))
			continue
		}
		if !ref.IsActive(minYear) {
			continue
		}
		distributedBySKU[row.SKU] = distributedBySKU[row.SKU].Add(row.Units)
		if ref.SKU != row.SKU {
			warningsBySKU[row.SKU] = append(warningsBySKU[row.SKU], fmt.Sprintf(
				"lot %s reference row records SKU %s", ref.LotCanonical, ref.SKU))
		}
	}

	skus := make([]string, 0, len(producedBySKU)+len(distributedBySKU))
	for sku := range producedBySKU {
		skus = append(skus, sku)
	}
	for sku := range distributedBySKU {
		if _, ok := producedBySKU[sku]; !ok {
			skus = append(skus, sku)
		}
	}
	sort.Strings(skus)

	rows := make([]ledger.LotLedgerRow, 0, len(skus))
	for _, sku := range skus {
		var produced *decimal.Decimal
		if p, ok := producedBySKU[sku]; ok {
			produced = &p
		}
		row := ledger.NewLotLedgerRow(sku, produced, distributedBySKU[sku])
		row.Warnings = append(row.Warnings, warningsBySKU[sku]...)
		rows = append(rows, row)
	}

	s.logger.Debug("lot ledger computed",
		zap.Int("min_year", minYear),
		zap.Int("rows", len(rows)))

	return &LotLedgerResult{MinYear: minYear, Rows: rows}, nil
}
