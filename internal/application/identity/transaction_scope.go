package identity

import (
	"context"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
)

// MergeTransactionScope provides transactional access to the repositories a
// merge approval touches. Reference migration, master enrichment, duplicate
// deletion and candidate review all commit or roll back together.
type MergeTransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos MergeRepositories) error) error
}

// MergeRepositories provides access to the repositories participating in a
// merge, all scoped to the same underlying transaction.
//
// Orders and distribution records are separate aggregates that hold foreign
// references to identities; the merge only rewrites those references, never
// the aggregates' own measurement fields.
type MergeRepositories interface {
	// IdentityRepo returns the canonical identity repository scoped to the current transaction
	IdentityRepo() identity.CanonicalIdentityRepository
	// MergeRepo returns the merge candidate repository scoped to the current transaction
	MergeRepo() identity.MergeCandidateRepository
	// OrderRepo returns the order repository scoped to the current transaction
	OrderRepo() fulfillment.OrderRepository
	// DistributionRepo returns the distribution record repository scoped to the current transaction
	DistributionRepo() fulfillment.DistributionRecordRepository
}

// NoOpMergeScope is a merge scope that doesn't actually use transactions.
// This is useful for testing or when transaction support is not required.
type NoOpMergeScope struct {
	identityRepo identity.CanonicalIdentityRepository
	mergeRepo    identity.MergeCandidateRepository
	orderRepo    fulfillment.OrderRepository
	distRepo     fulfillment.DistributionRecordRepository
}

// NewNoOpMergeScope creates a NoOpMergeScope with the given repositories.
func NewNoOpMergeScope(
	identityRepo identity.CanonicalIdentityRepository,
	mergeRepo identity.MergeCandidateRepository,
	orderRepo fulfillment.OrderRepository,
	distRepo fulfillment.DistributionRecordRepository,
) *NoOpMergeScope {
	return &NoOpMergeScope{
		identityRepo: identityRepo,
		mergeRepo:    mergeRepo,
		orderRepo:    orderRepo,
		distRepo:     distRepo,
	}
}

// Execute runs the function without a real transaction (for testing/compatibility).
func (s *NoOpMergeScope) Execute(_ context.Context, fn func(repos MergeRepositories) error) error {
	return fn(s)
}

// IdentityRepo returns the canonical identity repository.
func (s *NoOpMergeScope) IdentityRepo() identity.CanonicalIdentityRepository {
	return s.identityRepo
}

// MergeRepo returns the merge candidate repository.
func (s *NoOpMergeScope) MergeRepo() identity.MergeCandidateRepository {
	return s.mergeRepo
}

// OrderRepo returns the order repository.
func (s *NoOpMergeScope) OrderRepo() fulfillment.OrderRepository {
	return s.orderRepo
}

// DistributionRepo returns the distribution record repository.
func (s *NoOpMergeScope) DistributionRepo() fulfillment.DistributionRecordRepository {
	return s.distRepo
}

// Ensure NoOpMergeScope implements both interfaces
var _ MergeTransactionScope = (*NoOpMergeScope)(nil)
var _ MergeRepositories = (*NoOpMergeScope)(nil)
