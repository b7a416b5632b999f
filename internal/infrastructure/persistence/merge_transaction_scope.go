package persistence

import (
	"context"

	"gorm.io/gorm"

	appident "github.com/reconcile/backend/internal/application/identity"
	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
)

// GormMergeScope implements MergeTransactionScope using GORM transactions.
// Reference migration, master enrichment, duplicate deletion and candidate
// review commit or roll back as one unit.
type GormMergeScope struct {
	db *gorm.DB
}

// NewGormMergeScope creates a new GormMergeScope.
func NewGormMergeScope(db *gorm.DB) *GormMergeScope {
	return &GormMergeScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormMergeScope) Execute(ctx context.Context, fn func(repos appident.MergeRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := &gormMergeRepositories{tx: tx}
		return fn(repos)
	})
}

// gormMergeRepositories provides access to the merge repositories within a transaction.
type gormMergeRepositories struct {
	tx *gorm.DB
}

// IdentityRepo returns the canonical identity repository scoped to the current transaction.
func (r *gormMergeRepositories) IdentityRepo() identity.CanonicalIdentityRepository {
	return NewGormCanonicalIdentityRepository(r.tx)
}

// MergeRepo returns the merge candidate repository scoped to the current transaction.
func (r *gormMergeRepositories) MergeRepo() identity.MergeCandidateRepository {
	return NewGormMergeCandidateRepository(r.tx)
}

// OrderRepo returns the order repository scoped to the current transaction.
func (r *gormMergeRepositories) OrderRepo() fulfillment.OrderRepository {
	return NewGormOrderRepository(r.tx)
}

// DistributionRepo returns the distribution record repository scoped to the current transaction.
func (r *gormMergeRepositories) DistributionRepo() fulfillment.DistributionRecordRepository {
	return NewGormDistributionRecordRepository(r.tx)
}

// Ensure GormMergeScope implements MergeTransactionScope
var _ appident.MergeTransactionScope = (*GormMergeScope)(nil)

// Ensure gormMergeRepositories implements MergeRepositories
var _ appident.MergeRepositories = (*gormMergeRepositories)(nil)
