package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appfulfillment "github.com/reconcile/backend/internal/application/fulfillment"
	appidentity "github.com/reconcile/backend/internal/application/identity"
	appingest "github.com/reconcile/backend/internal/application/ingest"
	appledger "github.com/reconcile/backend/internal/application/ledger"
	applot "github.com/reconcile/backend/internal/application/lot"
	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/ledger"
	"github.com/reconcile/backend/internal/domain/lot"
	"github.com/reconcile/backend/internal/domain/shared"
	csvimport "github.com/reconcile/backend/internal/infrastructure/import"
	"github.com/reconcile/backend/internal/infrastructure/persistence"
)

// IngestFlowSetup bundles the repositories and services one feed file
// touches on its way from upload to ledger figures
type IngestFlowSetup struct {
	DB *TestDB

	IdentityRepo identity.CanonicalIdentityRepository
	OrderRepo    fulfillment.OrderRepository
	DistRepo     fulfillment.DistributionRecordRepository
	LotRepo      lot.LotReferenceRepository
	RunRepo      ingest.RunRepository

	Snapshots *applot.SnapshotService
	Batch     *appingest.BatchService
	Runs      *appingest.RunService
	Ledger    *appledger.LedgerService

	ctx context.Context
}

// NewIngestFlowSetup wires the full ingestion pipeline against a fresh
// container database. The small page size makes a handful of rows span
// several checkpoint commits.
func NewIngestFlowSetup(t *testing.T) *IngestFlowSetup {
	t.Helper()

	testDB := NewTestDB(t)
	logger := zap.NewNop()

	identityRepo := persistence.NewGormCanonicalIdentityRepository(testDB.DB)
	mergeRepo := persistence.NewGormMergeCandidateRepository(testDB.DB)
	orderRepo := persistence.NewGormOrderRepository(testDB.DB)
	distRepo := persistence.NewGormDistributionRecordRepository(testDB.DB)
	lotRepo := persistence.NewGormLotReferenceRepository(testDB.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(testDB.DB)
	runRepo := persistence.NewGormRunRepository(testDB.DB)

	resolution := appidentity.NewResolutionService(
		identityRepo, mergeRepo, nil, logger, appidentity.ResolutionConfig{})
	matcher := appfulfillment.NewMatcherService(
		orderRepo, distRepo, identityRepo, nil, logger, appfulfillment.MatcherConfig{})
	snapshots := applot.NewSnapshotService(lotRepo, runRepo, nil, nil, logger)
	orders := appfulfillment.NewOrderService(orderRepo, resolution, matcher, nil, logger)
	distributions := appfulfillment.NewDistributionService(distRepo, snapshots, matcher, nil, logger)

	return &IngestFlowSetup{
		DB:           testDB,
		IdentityRepo: identityRepo,
		OrderRepo:    orderRepo,
		DistRepo:     distRepo,
		LotRepo:      lotRepo,
		RunRepo:      runRepo,
		Snapshots:    snapshots,
		Batch: appingest.NewBatchService(
			runRepo, orders, distributions, nil, logger, appingest.BatchConfig{PageSize: 2}),
		Runs: appingest.NewRunService(runRepo, nil, logger),
		Ledger: appledger.NewLedgerService(
			ledgerRepo, snapshots, nil, logger, appledger.LedgerConfig{}),
		ctx: context.Background(),
	}
}

// SeedLotReferences loads reference rows before the first snapshot build
func (s *IngestFlowSetup) SeedLotReferences(t *testing.T, refs ...lot.LotReference) {
	t.Helper()
	require.NoError(t, s.LotRepo.UpsertAll(s.ctx, refs))
}

// mustLotReference builds a reference row fixture
func mustLotReference(t *testing.T, label string, year int, produced int64, sku string) lot.LotReference {
	t.Helper()
	ref, err := lot.NewLotReference(label, year, decimal.NewFromInt(produced), sku)
	require.NoError(t, err)
	return *ref
}

// TestBatchIngestFlow pushes two feed files through the whole pipeline and
// checks the figures that come out the other end. The subtests are ordered:
// orders land first, distributions match against them, then the ledger reads
// what matching produced.
func TestBatchIngestFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	s := NewIngestFlowSetup(t)

	// ==================== Lot reference snapshot ====================

	s.SeedLotReferences(t,
		mustLotReference(t, "LOT A100", 2026, 500, "GLOW-16"),
		mustLotReference(t, "LOT B200", 2026, 300, "GLOW-32"),
		mustLotReference(t, "LOT X900", 2019, 100, "GLOW-16"),
	)

	ordersCSV := `order_number,order_date,customer_name,city,state,postal_code,external_key
SO-2001,2026-05-02,Sunrise Gardens LLC,Salem,OR,97301,feed-ord-1
SO-2002,2026-05-03,Bluebird Farms,Boise,ID,83702,feed-ord-2
SO-2003,2026-05-10,SUNRISE GARDENS INC,Salem,OR,97301,feed-ord-3
SO-2004,2026-05-12,Bluebird Farms,Boise,ID,83702,feed-ord-4
SO-2005,2026-05-15,Copper Kettle Supply,Spokane,WA,99201,feed-ord-5
`

	distributionsCSV := `order_number,sku,quantity,lot,ship_date,ship_to_city,ship_to_state,ship_to_zip,external_key
SO-2001,GLOW-16,120.5,lot a100,2026-05-20,,,,feed-dist-1
SO-2002,GLOW-32,80,LOT-B200,2026-05-21,,,,feed-dist-2
SO-2001,GLOW-16,10,LOT-B200,2026-05-22,,,,feed-dist-2b
SO-2004,GLOW-32,40,LOT-B200,2026-06-02,,,,feed-dist-3
,GLOW-16,25,lot a100,2026-06-05,Spokane,WA,99201,feed-dist-4
SO-9999,GLOW-16,5,,2026-06-07,,,,feed-dist-5
`

	var ordersRunID uuid.UUID

	// ==================== Order ingestion ====================

	t.Run("OrdersFileCreatesIdentitiesAndOrders", func(t *testing.T) {
		resp, err := s.Batch.IngestOrders(s.ctx, appingest.BatchRequest{
			Source:   "feed",
			FileName: "orders_may.csv",
			Data:     []byte(ordersCSV),
		})
		require.NoError(t, err)

		assert.Equal(t, ingest.RunStatusCompleted, resp.Status)
		assert.Equal(t, 5, resp.TotalRows)
		assert.Equal(t, 5, resp.Report.Created)
		assert.Zero(t, resp.Report.Failed)
		assert.Equal(t, 3, resp.PagesCommitted)
		ordersRunID = resp.RunID

		// Both Sunrise spellings resolved to one identity
		sunrise, err := s.IdentityRepo.FindByCanonicalKey(s.ctx, "SUNRISEGARDENS")
		require.NoError(t, err)
		sunriseOrders, err := s.OrderRepo.FindByIdentity(s.ctx, sunrise.ID, shared.DefaultFilter())
		require.NoError(t, err)
		assert.Len(t, sunriseOrders, 2)

		total, err := s.IdentityRepo.Count(s.ctx, shared.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	t.Run("RedeliveredFileSkipsEveryRow", func(t *testing.T) {
		resp, err := s.Batch.IngestOrders(s.ctx, appingest.BatchRequest{
			Source:   "feed",
			FileName: "orders_may.csv",
			Data:     []byte(ordersCSV),
		})
		require.NoError(t, err)

		assert.Equal(t, ingest.RunStatusCompleted, resp.Status)
		assert.Equal(t, 5, resp.Report.SkippedDuplicate)
		assert.Zero(t, resp.Report.Created)

		total, err := s.IdentityRepo.Count(s.ctx, shared.Filter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
	})

	// ==================== Distribution ingestion ====================

	t.Run("DistributionsFileMatchesOrders", func(t *testing.T) {
		resp, err := s.Batch.IngestDistributions(s.ctx, appingest.BatchRequest{
			Source:   "feed",
			FileName: "shipments_may.csv",
			Data:     []byte(distributionsCSV),
		})
		require.NoError(t, err)

		assert.Equal(t, ingest.RunStatusCompleted, resp.Status)
		assert.Equal(t, 6, resp.Report.Created)
		assert.Equal(t, 5, resp.Report.Matched)
		assert.Zero(t, resp.Report.Failed)

		// The lot label was canonicalized on the way in
		first, err := s.DistRepo.FindBySourceKey(s.ctx, identity.SourceFeed, "feed-dist-1")
		require.NoError(t, err)
		assert.Equal(t, "LOT-A100", first.LotCanonical)
		require.NotNil(t, first.MatchedOrderID)

		// The record without an order number matched through its ship-to
		// address, which only Copper Kettle's order shares
		copperOrder, err := s.OrderRepo.FindBySourceKey(s.ctx, identity.SourceFeed, "feed-ord-5")
		require.NoError(t, err)
		byAddress, err := s.DistRepo.FindBySourceKey(s.ctx, identity.SourceFeed, "feed-dist-4")
		require.NoError(t, err)
		require.NotNil(t, byAddress.MatchedOrderID)
		assert.Equal(t, copperOrder.ID, *byAddress.MatchedOrderID)
		assert.Equal(t, "Copper Kettle Supply", byAddress.IdentityDisplayName)

		// The unknown order number stays queued
		unmatched, err := s.DistRepo.FindUnmatched(s.ctx, 10)
		require.NoError(t, err)
		require.Len(t, unmatched, 1)
		assert.Equal(t, "feed-dist-5", unmatched[0].ExternalKey)
	})

	t.Run("MalformedRowsAreRecorded", func(t *testing.T) {
		badCSV := `order_number,order_date,customer_name,external_key
SO-3001,05/02/2026,Morning Dew Co,feed-bad-1
,2026-06-01,Missing Number,feed-bad-2
SO-3003,2026-06-02,Morning Dew Co,feed-bad-3
`
		resp, err := s.Batch.IngestOrders(s.ctx, appingest.BatchRequest{
			Source:   "feed",
			FileName: "orders_fixup.csv",
			Data:     []byte(badCSV),
		})
		require.NoError(t, err)

		assert.Equal(t, ingest.RunStatusCompleted, resp.Status)
		assert.Equal(t, 1, resp.Report.Created)
		assert.Equal(t, 2, resp.Report.Failed)
		require.Len(t, resp.Errors, 2)
		assert.Equal(t, 2, resp.Errors[0].Row)
		assert.Equal(t, csvimport.ErrCodeInvalidType, resp.Errors[0].Code)
		assert.Equal(t, 3, resp.Errors[1].Row)
		assert.Equal(t, csvimport.ErrCodeRequiredField, resp.Errors[1].Code)

		content, fileName, err := s.Runs.ErrorsCSV(s.ctx, resp.RunID)
		require.NoError(t, err)
		assert.Contains(t, content, "row,external_key,code,message")
		assert.Contains(t, fileName, "ingest_errors_orders_")
	})

	t.Run("RunHistoryRoundTrips", func(t *testing.T) {
		run, err := s.Runs.GetByID(s.ctx, ordersRunID)
		require.NoError(t, err)
		assert.Equal(t, "orders", run.Kind)
		assert.Equal(t, string(ingest.RunStatusCompleted), run.Status)
		assert.Equal(t, "orders_may.csv", run.FileName)
		assert.Equal(t, 5, run.Report.Created)

		listed, err := s.Runs.List(s.ctx, appingest.ListRunsRequest{Kind: "orders"})
		require.NoError(t, err)
		assert.Equal(t, int64(3), listed.TotalCount)
	})

	// ==================== Ledger figures ====================

	t.Run("RollupAggregatesMatchedActivity", func(t *testing.T) {
		rollup, err := s.Ledger.ComputeRollup(s.ctx, ledger.Window{})
		require.NoError(t, err)

		assert.Equal(t, "275.5", rollup.TotalUnits.String())
		assert.Equal(t, int64(4), rollup.TotalOrders)

		require.Len(t, rollup.SKUBreakdown, 2)
		assert.Equal(t, "GLOW-16", rollup.SKUBreakdown[0].SKU)
		assert.Equal(t, "155.5", rollup.SKUBreakdown[0].Units.String())
		assert.Equal(t, "GLOW-32", rollup.SKUBreakdown[1].SKU)
		assert.Equal(t, "120", rollup.SKUBreakdown[1].Units.String())

		// Bluebird matched two distinct orders, the other two matched one
		assert.Equal(t, ledger.NewVsRepeat{New: 2, Repeat: 1}, rollup.NewVsRepeat)
	})

	t.Run("WindowedRollupBoundsByShipDate", func(t *testing.T) {
		from := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		rollup, err := s.Ledger.ComputeRollup(s.ctx, ledger.Window{From: &from})
		require.NoError(t, err)

		assert.Equal(t, "65", rollup.TotalUnits.String())
		assert.Equal(t, int64(2), rollup.TotalOrders)

		// The window picks who counts; the new-versus-repeat grading still
		// looks at lifetime history
		assert.Equal(t, ledger.NewVsRepeat{New: 1, Repeat: 1}, rollup.NewVsRepeat)
	})

	t.Run("LotLedgerReconcilesProducedAndDistributed", func(t *testing.T) {
		result, err := s.Ledger.ComputeLotLedger(s.ctx, 2024)
		require.NoError(t, err)

		assert.Equal(t, 2024, result.MinYear)
		require.Len(t, result.Rows, 2)

		glow16 := result.Rows[0]
		assert.Equal(t, "GLOW-16", glow16.SKU)
		require.NotNil(t, glow16.TotalProduced)
		assert.Equal(t, "500", glow16.TotalProduced.String())
		assert.Equal(t, "155.5", glow16.TotalDistributed.String())
		require.NotNil(t, glow16.Remaining)
		assert.Equal(t, "344.5", glow16.Remaining.String())
		// One GLOW-16 line shipped under a lot whose reference row records
		// the other SKU
		require.Len(t, glow16.Warnings, 1)
		assert.Contains(t, glow16.Warnings[0], "LOT-B200")

		glow32 := result.Rows[1]
		assert.Equal(t, "GLOW-32", glow32.SKU)
		require.NotNil(t, glow32.TotalProduced)
		assert.Equal(t, "300", glow32.TotalProduced.String())
		assert.Equal(t, "120", glow32.TotalDistributed.String())
		require.NotNil(t, glow32.Remaining)
		assert.Equal(t, "180", glow32.Remaining.String())
	})

	// ==================== Crash recovery ====================

	t.Run("StaleRunIsRecovered", func(t *testing.T) {
		crashed, err := ingest.NewRun(ingest.RunKindOrders, identity.SourceFeed, "crashed.csv", 64)
		require.NoError(t, err)
		require.NoError(t, crashed.StartProcessing(40))
		require.NoError(t, s.RunRepo.Save(s.ctx, crashed))

		recovered, err := s.Runs.RecoverStale(s.ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, recovered)

		failed, err := s.Runs.GetByID(s.ctx, crashed.ID)
		require.NoError(t, err)
		assert.Equal(t, string(ingest.RunStatusFailed), failed.Status)
		require.NotEmpty(t, failed.ErrorDetails)
		assert.Equal(t, "RUN_INTERRUPTED", failed.ErrorDetails[0].Code)
	})
}
