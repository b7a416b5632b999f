package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// =============================================================================
// Mock Repositories
// =============================================================================

// MockOrderRepository is a mock implementation of fulfillment.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindBySourceKey(ctx context.Context, source identity.Source, externalKey string) (*fulfillment.Order, error) {
	args := m.Called(ctx, source, externalKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindMatchableByNumber(ctx context.Context, orderNumberNorm string) ([]fulfillment.Order, error) {
	args := m.Called(ctx, orderNumberNorm)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) ([]fulfillment.Order, error) {
	args := m.Called(ctx, identityID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindMatchable(ctx context.Context, limit int) ([]fulfillment.Order, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]fulfillment.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.Order), args.Error(1)
}

func (m *MockOrderRepository) Insert(ctx context.Context, order *fulfillment.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) Save(ctx context.Context, order *fulfillment.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) CountByStatus(ctx context.Context, status fulfillment.OrderStatus) (int64, error) {
	args := m.Called(ctx, status)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) UpdateIdentityReferences(ctx context.Context, fromID, toID uuid.UUID) (int64, error) {
	args := m.Called(ctx, fromID, toID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOrderRepository) ExistsBySourceKey(ctx context.Context, source identity.Source, externalKey string) (bool, error) {
	args := m.Called(ctx, source, externalKey)
	return args.Bool(0), args.Error(1)
}

// MockDistributionRecordRepository is a mock implementation of fulfillment.DistributionRecordRepository
type MockDistributionRecordRepository struct {
	mock.Mock
}

func (m *MockDistributionRecordRepository) FindByID(ctx context.Context, id uuid.UUID) (*fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) FindBySourceKey(ctx context.Context, source identity.Source, externalKey string) (*fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, source, externalKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) FindUnmatchedByNumber(ctx context.Context, orderNumberNorm string) ([]fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, orderNumberNorm)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) FindUnmatched(ctx context.Context, limit int) ([]fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) FindByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) ([]fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, identityID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) FindAll(ctx context.Context, filter shared.Filter) ([]fulfillment.DistributionRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]fulfillment.DistributionRecord), args.Error(1)
}

func (m *MockDistributionRecordRepository) Insert(ctx context.Context, rec *fulfillment.DistributionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDistributionRecordRepository) Save(ctx context.Context, rec *fulfillment.DistributionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDistributionRecordRepository) SaveMatch(ctx context.Context, rec *fulfillment.DistributionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDistributionRecordRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDistributionRecordRepository) CountUnmatched(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDistributionRecordRepository) UpdateIdentityReferences(ctx context.Context, fromID, toID uuid.UUID, toDisplayName string) (int64, error) {
	args := m.Called(ctx, fromID, toID, toDisplayName)
	return args.Get(0).(int64), args.Error(1)
}

// Verify interface compliance
var _ fulfillment.OrderRepository = (*MockOrderRepository)(nil)
var _ fulfillment.DistributionRecordRepository = (*MockDistributionRecordRepository)(nil)

// =============================================================================
// Test Helper Functions
// =============================================================================

type mergeTestFixture struct {
	identityRepo *MockCanonicalIdentityRepository
	mergeRepo    *MockMergeCandidateRepository
	orderRepo    *MockOrderRepository
	distRepo     *MockDistributionRecordRepository
	service      *MergeService
}

func newMergeTestFixture() *mergeTestFixture {
	f := &mergeTestFixture{
		identityRepo: new(MockCanonicalIdentityRepository),
		mergeRepo:    new(MockMergeCandidateRepository),
		orderRepo:    new(MockOrderRepository),
		distRepo:     new(MockDistributionRecordRepository),
	}
	scope := NewNoOpMergeScope(f.identityRepo, f.mergeRepo, f.orderRepo, f.distRepo)
	f.service = NewMergeService(scope, f.identityRepo, f.mergeRepo, nil, nil)
	return f
}

func createTestMergeCandidate(id, identityA, identityB uuid.UUID) *identity.MergeCandidate {
	mc, _ := identity.NewMergeCandidate(identityA, identityB, identity.ConfidenceWeak, "similar key")
	mc.ID = id
	mc.ClearDomainEvents()
	return mc
}

// =============================================================================
// MergeService Tests
// =============================================================================

func TestMergeService_Enqueue_Success(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	masterID := newTestIdentityID()
	dupID := newTestVariantID()
	master := createTestIdentity(masterID, "Acme Hospital")
	dup := createTestIdentity(dupID, "Acme Hospital West")

	f.identityRepo.On("FindByID", ctx, masterID).Return(master, nil)
	f.identityRepo.On("FindByID", ctx, dupID).Return(dup, nil)
	f.mergeRepo.On("FindByPair", ctx, masterID, dupID).Return(nil, shared.ErrNotFound)
	f.mergeRepo.On("Insert", ctx, mock.AnythingOfType("*identity.MergeCandidate")).Return(nil)

	result, err := f.service.Enqueue(ctx, EnqueueMergeRequest{
		IdentityA: masterID,
		IdentityB: dupID,
		Reason:    "same facility, different spellings",
	})

	assert.NoError(t, err)
	assert.Equal(t, "pending", result.Status)
	assert.Equal(t, "manual", result.Confidence)
	assert.Equal(t, "same facility, different spellings", result.Reason)
	f.mergeRepo.AssertExpectations(t)
}

func TestMergeService_Enqueue_ExistingPairIsReturned(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	masterID := newTestIdentityID()
	dupID := newTestVariantID()
	master := createTestIdentity(masterID, "Acme Hospital")
	dup := createTestIdentity(dupID, "Acme Hospital West")
	existing := createTestMergeCandidate(uuid.MustParse("44444444-4444-4444-4444-444444444444"), masterID, dupID)

	f.identityRepo.On("FindByID", ctx, masterID).Return(master, nil)
	f.identityRepo.On("FindByID", ctx, dupID).Return(dup, nil)
	f.mergeRepo.On("FindByPair", ctx, masterID, dupID).Return(existing, nil)

	result, err := f.service.Enqueue(ctx, EnqueueMergeRequest{
		IdentityA: masterID,
		IdentityB: dupID,
	})

	assert.NoError(t, err)
	assert.Equal(t, existing.ID, result.ID)
	f.mergeRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestMergeService_Enqueue_IdentityMissing(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	missingID := newTestIdentityID()
	f.identityRepo.On("FindByID", ctx, missingID).Return(nil, shared.ErrNotFound)

	result, err := f.service.Enqueue(ctx, EnqueueMergeRequest{
		IdentityA: missingID,
		IdentityB: newTestVariantID(),
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestMergeService_Approve_Success(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	masterID := newTestIdentityID()
	dupID := newTestVariantID()
	candidateID := uuid.MustParse("44444444-4444-4444-4444-444444444444")

	master := createTestIdentity(masterID, "Acme Hospital")
	dup := createTestIdentity(dupID, "Acme Hospital West")
	dup.City = "Denver"
	dup.State = "CO"
	candidate := createTestMergeCandidate(candidateID, masterID, dupID)

	otherPending := createTestMergeCandidate(uuid.MustParse("55555555-5555-5555-5555-555555555555"), dupID,
		uuid.MustParse("66666666-6666-6666-6666-666666666666"))

	f.mergeRepo.On("FindByID", ctx, candidateID).Return(candidate, nil)
	f.identityRepo.On("FindByID", ctx, masterID).Return(master, nil)
	f.identityRepo.On("FindByID", ctx, dupID).Return(dup, nil)
	f.orderRepo.On("UpdateIdentityReferences", ctx, dupID, masterID).Return(int64(3), nil)
	f.distRepo.On("UpdateIdentityReferences", ctx, dupID, masterID, "Acme Hospital").Return(int64(2), nil)
	f.identityRepo.On("Save", ctx, master).Return(nil)
	f.mergeRepo.On("Save", ctx, mock.AnythingOfType("*identity.MergeCandidate")).Return(nil).Times(2)
	f.mergeRepo.On("FindPendingByIdentity", ctx, dupID).Return([]identity.MergeCandidate{*otherPending}, nil)
	f.identityRepo.On("Delete", ctx, dupID).Return(nil)

	result, err := f.service.Approve(ctx, candidateID, masterID)

	assert.NoError(t, err)
	assert.Equal(t, masterID, result.MasterID)
	assert.Equal(t, dupID, result.MergedID)
	assert.Equal(t, int64(3), result.MigratedOrders)
	assert.Equal(t, int64(2), result.MigratedDistributions)
	assert.Equal(t, 1, result.SupersededCandidates)

	// Master inherited the duplicate's fields into its blanks
	assert.Equal(t, "Denver", master.City)
	assert.Equal(t, "CO", master.State)
	assert.Equal(t, identity.MergeStatusMerged, candidate.Status)
	assert.Equal(t, masterID, *candidate.MasterID)

	f.mergeRepo.AssertExpectations(t)
	f.identityRepo.AssertExpectations(t)
	f.orderRepo.AssertExpectations(t)
	f.distRepo.AssertExpectations(t)
}

func TestMergeService_Approve_MasterNotInPair(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	candidateID := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	candidate := createTestMergeCandidate(candidateID, newTestIdentityID(), newTestVariantID())
	outsiderID := uuid.MustParse("99999999-9999-9999-9999-999999999999")

	f.mergeRepo.On("FindByID", ctx, candidateID).Return(candidate, nil)

	result, err := f.service.Approve(ctx, candidateID, outsiderID)

	assert.Error(t, err)
	assert.Nil(t, result)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, identity.MergeStatusPending, candidate.Status)
	f.identityRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestMergeService_Approve_AlreadyReviewed(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	masterID := newTestIdentityID()
	candidateID := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	candidate := createTestMergeCandidate(candidateID, masterID, newTestVariantID())
	_ = candidate.Reject()
	candidate.ClearDomainEvents()

	f.mergeRepo.On("FindByID", ctx, candidateID).Return(candidate, nil)

	result, err := f.service.Approve(ctx, candidateID, masterID)

	assert.Error(t, err)
	assert.Nil(t, result)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATE", domainErr.Code)
	f.identityRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestMergeService_Approve_RollsBackOnMigrationFailure(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	masterID := newTestIdentityID()
	dupID := newTestVariantID()
	candidateID := uuid.MustParse("44444444-4444-4444-4444-444444444444")

	master := createTestIdentity(masterID, "Acme Hospital")
	dup := createTestIdentity(dupID, "Acme Hospital West")
	candidate := createTestMergeCandidate(candidateID, masterID, dupID)

	f.mergeRepo.On("FindByID", ctx, candidateID).Return(candidate, nil)
	f.identityRepo.On("FindByID", ctx, masterID).Return(master, nil)
	f.identityRepo.On("FindByID", ctx, dupID).Return(dup, nil)
	f.orderRepo.On("UpdateIdentityReferences", ctx, dupID, masterID).
		Return(int64(0), shared.NewDomainError("DB_ERROR", "connection lost"))

	result, err := f.service.Approve(ctx, candidateID, masterID)

	assert.Error(t, err)
	assert.Nil(t, result)
	f.identityRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.distRepo.AssertNotCalled(t, "UpdateIdentityReferences", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMergeService_Reject_Success(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	candidateID := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	candidate := createTestMergeCandidate(candidateID, newTestIdentityID(), newTestVariantID())

	f.mergeRepo.On("FindByID", ctx, candidateID).Return(candidate, nil)
	f.mergeRepo.On("Save", ctx, candidate).Return(nil)

	result, err := f.service.Reject(ctx, candidateID)

	assert.NoError(t, err)
	assert.Equal(t, "rejected", result.Status)
	assert.NotNil(t, result.ReviewedAt)
	f.mergeRepo.AssertExpectations(t)
}

func TestMergeService_ListByStatus(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	masterID := newTestIdentityID()
	dupID := newTestVariantID()
	master := createTestIdentity(masterID, "Acme Hospital")
	dup := createTestIdentity(dupID, "Acme Hospital West")
	candidate := createTestMergeCandidate(uuid.MustParse("44444444-4444-4444-4444-444444444444"), masterID, dupID)
	filter := shared.DefaultFilter()

	f.mergeRepo.On("FindByStatus", ctx, identity.MergeStatusPending, filter).
		Return([]identity.MergeCandidate{*candidate}, nil)
	f.mergeRepo.On("CountByStatus", ctx, identity.MergeStatusPending).Return(int64(1), nil)
	f.identityRepo.On("FindByIDs", ctx, mock.AnythingOfType("[]uuid.UUID")).
		Return([]identity.CanonicalIdentity{*master, *dup}, nil)

	result, err := f.service.ListByStatus(ctx, identity.MergeStatusPending, filter)

	assert.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, int64(1), result.TotalCount)
	assert.Equal(t, "Acme Hospital", result.Items[0].IdentityAName)
	assert.Equal(t, "Acme Hospital West", result.Items[0].IdentityBName)
	f.mergeRepo.AssertExpectations(t)
}

func TestMergeService_ListByStatus_InvalidStatus(t *testing.T) {
	f := newMergeTestFixture()
	ctx := context.Background()

	result, err := f.service.ListByStatus(ctx, "archived", shared.DefaultFilter())

	assert.Error(t, err)
	assert.Nil(t, result)
	var domainErr *shared.DomainError
	assert.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INVALID_STATUS", domainErr.Code)
}
