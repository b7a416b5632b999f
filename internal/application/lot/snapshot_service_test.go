package lot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/lot"
	"github.com/reconcile/backend/internal/domain/shared"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockLotReferenceRepository is a mock implementation of lot.LotReferenceRepository
type MockLotReferenceRepository struct {
	mock.Mock
}

func (m *MockLotReferenceRepository) FindByCanonical(ctx context.Context, canonical string) (*lot.LotReference, error) {
	args := m.Called(ctx, canonical)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lot.LotReference), args.Error(1)
}

func (m *MockLotReferenceRepository) FindByCanonicals(ctx context.Context, canonicals []string) ([]lot.LotReference, error) {
	args := m.Called(ctx, canonicals)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lot.LotReference), args.Error(1)
}

func (m *MockLotReferenceRepository) FindByMinYear(ctx context.Context, minYear int) ([]lot.LotReference, error) {
	args := m.Called(ctx, minYear)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lot.LotReference), args.Error(1)
}

func (m *MockLotReferenceRepository) FindAll(ctx context.Context) ([]lot.LotReference, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lot.LotReference), args.Error(1)
}

func (m *MockLotReferenceRepository) UpsertAll(ctx context.Context, refs []lot.LotReference) error {
	args := m.Called(ctx, refs)
	return args.Error(0)
}

func (m *MockLotReferenceRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockRunRepository is a mock implementation of ingest.RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*ingest.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.Run), args.Error(1)
}

func (m *MockRunRepository) FindAll(ctx context.Context, filter ingest.RunFilter, page, pageSize int) (*ingest.RunListResult, error) {
	args := m.Called(ctx, filter, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.RunListResult), args.Error(1)
}

func (m *MockRunRepository) FindByStatus(ctx context.Context, status ingest.RunStatus) ([]*ingest.Run, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingest.Run), args.Error(1)
}

func (m *MockRunRepository) FindStale(ctx context.Context, cutoff time.Time) ([]*ingest.Run, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingest.Run), args.Error(1)
}

func (m *MockRunRepository) Save(ctx context.Context, run *ingest.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockSnapshotSource is a mock implementation of SnapshotSource
type MockSnapshotSource struct {
	mock.Mock
}

func (m *MockSnapshotSource) Fetch(ctx context.Context) (*SnapshotData, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*SnapshotData), args.Error(1)
}

func (m *MockSnapshotSource) Describe() string {
	args := m.Called()
	return args.String(0)
}

// MockEventPublisher is a mock implementation of shared.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

var _ lot.LotReferenceRepository = (*MockLotReferenceRepository)(nil)
var _ ingest.RunRepository = (*MockRunRepository)(nil)
var _ SnapshotSource = (*MockSnapshotSource)(nil)
var _ shared.EventPublisher = (*MockEventPublisher)(nil)

// =============================================================================
// Test Helper Functions
// =============================================================================

func testRef(t *testing.T, label string, year int, produced int64, sku string) lot.LotReference {
	t.Helper()
	ref, err := lot.NewLotReference(label, year, decimal.NewFromInt(produced), sku)
	require.NoError(t, err)
	return *ref
}

type snapshotTestFixture struct {
	refRepo   *MockLotReferenceRepository
	runRepo   *MockRunRepository
	source    *MockSnapshotSource
	publisher *MockEventPublisher
	service   *SnapshotService
}

func newSnapshotTestFixture() *snapshotTestFixture {
	f := &snapshotTestFixture{
		refRepo:   new(MockLotReferenceRepository),
		runRepo:   new(MockRunRepository),
		source:    new(MockSnapshotSource),
		publisher: new(MockEventPublisher),
	}
	f.service = NewSnapshotService(f.refRepo, f.runRepo, f.source, f.publisher, nil)
	return f
}

// =============================================================================
// SnapshotService Tests
// =============================================================================

func TestSnapshotService_SyncFromSource_UpsertsAndSwapsSnapshot(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	refs := []lot.LotReference{
		testRef(t, "SLQ-001", 2024, 100, "SKU-A"),
		testRef(t, "SLQ-002", 2023, 50, "SKU-A"),
	}
	data := &SnapshotData{
		Corrections: map[string]string{"SLQ-OO1": "SLQ-001"},
		References:  refs,
	}

	var savedStatuses []ingest.RunStatus
	f.source.On("Describe").Return("file:refdata/lots.csv")
	f.source.On("Fetch", ctx).Return(data, nil).Once()
	f.runRepo.On("Save", ctx, mock.AnythingOfType("*ingest.Run")).Return(nil).Times(3).Run(func(args mock.Arguments) {
		savedStatuses = append(savedStatuses, args.Get(1).(*ingest.Run).Status)
	})
	f.refRepo.On("UpsertAll", ctx, refs).Return(nil).Once()
	f.refRepo.On("FindAll", ctx).Return(refs, nil).Once()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

	resp, err := f.service.SyncFromSource(ctx)

	require.NoError(t, err)
	assert.Equal(t, "file:refdata/lots.csv", resp.Source)
	assert.Equal(t, 2, resp.References)
	assert.Equal(t, 1, resp.Corrections)
	assert.Equal(t, 2, resp.Report.Created)
	assert.Equal(t, 0, resp.Report.Failed)
	assert.Equal(t, []ingest.RunStatus{
		ingest.RunStatusPending,
		ingest.RunStatusProcessing,
		ingest.RunStatusCompleted,
	}, savedStatuses)

	// The swapped snapshot serves the new rows without another repo hit
	info, err := f.service.Canonicalize(ctx, "slq 002")
	require.NoError(t, err)
	require.NotNil(t, info.ManufacturingYear)
	assert.Equal(t, 2023, *info.ManufacturingYear)

	f.refRepo.AssertExpectations(t)
	f.runRepo.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

func TestSnapshotService_SyncFromSource_PublishesRunCompletedEvent(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	refs := []lot.LotReference{testRef(t, "SLQ-001", 2024, 100, "SKU-A")}
	data := &SnapshotData{References: refs}

	var published []shared.DomainEvent
	f.source.On("Describe").Return("feed")
	f.source.On("Fetch", ctx).Return(data, nil)
	f.runRepo.On("Save", ctx, mock.Anything).Return(nil)
	f.refRepo.On("UpsertAll", ctx, refs).Return(nil)
	f.refRepo.On("FindAll", ctx).Return(refs, nil)
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once().Run(func(args mock.Arguments) {
		published = args.Get(1).([]shared.DomainEvent)
	})

	_, err := f.service.SyncFromSource(ctx)

	require.NoError(t, err)
	require.Len(t, published, 1)
	event, ok := published[0].(*ingest.RunCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, ingest.RunKindLotReferences, event.Kind)
	assert.Equal(t, ingest.RunStatusCompleted, event.Status)
	assert.Equal(t, 1, event.Report.Created)
}

func TestSnapshotService_SyncFromSource_FetchFailureFailsRun(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	fetchErr := errors.New("connection refused")
	var savedStatuses []ingest.RunStatus
	f.source.On("Describe").Return("s3://refdata/lots.csv")
	f.source.On("Fetch", ctx).Return(nil, fetchErr).Once()
	f.runRepo.On("Save", ctx, mock.AnythingOfType("*ingest.Run")).Return(nil).Times(2).Run(func(args mock.Arguments) {
		savedStatuses = append(savedStatuses, args.Get(1).(*ingest.Run).Status)
	})
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil).Once()

	resp, err := f.service.SyncFromSource(ctx)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, []ingest.RunStatus{
		ingest.RunStatusPending,
		ingest.RunStatusFailed,
	}, savedStatuses)
	f.refRepo.AssertNotCalled(t, "UpsertAll", mock.Anything, mock.Anything)
}

func TestSnapshotService_SyncFromSource_UpsertFailureFailsRun(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	refs := []lot.LotReference{testRef(t, "SLQ-001", 2024, 100, "SKU-A")}
	dbErr := errors.New("deadlock detected")

	var savedStatuses []ingest.RunStatus
	f.source.On("Describe").Return("feed")
	f.source.On("Fetch", ctx).Return(&SnapshotData{References: refs}, nil)
	f.runRepo.On("Save", ctx, mock.AnythingOfType("*ingest.Run")).Return(nil).Run(func(args mock.Arguments) {
		savedStatuses = append(savedStatuses, args.Get(1).(*ingest.Run).Status)
	})
	f.refRepo.On("UpsertAll", ctx, refs).Return(dbErr).Once()
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

	resp, err := f.service.SyncFromSource(ctx)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, dbErr)
	assert.Equal(t, ingest.RunStatusFailed, savedStatuses[len(savedStatuses)-1])
	f.refRepo.AssertNotCalled(t, "FindAll", mock.Anything)
}

func TestSnapshotService_SyncFromSource_NoSourceConfigured(t *testing.T) {
	refRepo := new(MockLotReferenceRepository)
	runRepo := new(MockRunRepository)
	service := NewSnapshotService(refRepo, runRepo, nil, nil, nil)

	resp, err := service.SyncFromSource(context.Background())

	assert.Nil(t, resp)
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NO_SNAPSHOT_SOURCE", domainErr.Code)
	runRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSnapshotService_Current_ColdStartBuildsFromRepository(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	refs := []lot.LotReference{testRef(t, "SLQ-001", 2024, 100, "SKU-A")}
	f.refRepo.On("FindAll", ctx).Return(refs, nil).Once()

	snap, err := f.service.Current(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, snap.Size())

	// Second call serves the cached snapshot
	again, err := f.service.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Size())
	f.refRepo.AssertExpectations(t)
}

func TestSnapshotService_Current_RepositoryErrorPropagates(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	dbErr := errors.New("connection reset")
	f.refRepo.On("FindAll", ctx).Return(nil, dbErr).Once()

	_, err := f.service.Current(ctx)

	assert.ErrorIs(t, err, dbErr)
}

func TestSnapshotService_Canonicalize_AppliesCorrectionsAfterSync(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	refs := []lot.LotReference{testRef(t, "SLQ-001", 2024, 100, "SKU-A")}
	data := &SnapshotData{
		Corrections: map[string]string{"SLQ-OO1": "SLQ-001"},
		References:  refs,
	}

	f.source.On("Describe").Return("feed")
	f.source.On("Fetch", ctx).Return(data, nil)
	f.runRepo.On("Save", ctx, mock.Anything).Return(nil)
	f.refRepo.On("UpsertAll", ctx, refs).Return(nil)
	f.refRepo.On("FindAll", ctx).Return(refs, nil)
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

	_, err := f.service.SyncFromSource(ctx)
	require.NoError(t, err)

	// The mistyped label resolves through the correction map to the real row
	info, err := f.service.Canonicalize(ctx, "slq_oo1")
	require.NoError(t, err)
	assert.Equal(t, "SLQ-001", info.Canonical)
	require.NotNil(t, info.ManufacturingYear)
	assert.Equal(t, 2024, *info.ManufacturingYear)
	assert.Equal(t, "SKU-A", info.SKUHint)
}

func TestSnapshotService_Canonicalize_UnknownLabelNormalizesOnly(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	f.refRepo.On("FindAll", ctx).Return([]lot.LotReference{}, nil).Once()

	info, err := f.service.Canonicalize(ctx, "zz 900")

	require.NoError(t, err)
	assert.Equal(t, "ZZ-900", info.Canonical)
	assert.Nil(t, info.ManufacturingYear)
	assert.Empty(t, info.SKUHint)
}

func TestSnapshotService_Status_ReportsServedSnapshot(t *testing.T) {
	f := newSnapshotTestFixture()
	ctx := context.Background()

	refs := []lot.LotReference{
		testRef(t, "SLQ-001", 2024, 100, "SKU-A"),
		testRef(t, "SLQ-002", 2023, 50, "SKU-A"),
	}
	data := &SnapshotData{
		Corrections: map[string]string{"SLQ-OO1": "SLQ-001"},
		References:  refs,
	}

	f.source.On("Describe").Return("feed")
	f.source.On("Fetch", ctx).Return(data, nil)
	f.runRepo.On("Save", ctx, mock.Anything).Return(nil)
	f.refRepo.On("UpsertAll", ctx, refs).Return(nil)
	f.refRepo.On("FindAll", ctx).Return(refs, nil)
	f.publisher.On("Publish", ctx, mock.Anything).Return(nil)

	_, err := f.service.SyncFromSource(ctx)
	require.NoError(t, err)

	status, err := f.service.Status(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, status.References)
	assert.Equal(t, 1, status.Corrections)
	require.NotNil(t, status.LoadedAt)
	assert.WithinDuration(t, time.Now(), *status.LoadedAt, time.Minute)
}
