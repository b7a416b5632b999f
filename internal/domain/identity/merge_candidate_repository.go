package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/shared"
)

// MergeCandidateRepository defines the interface for merge queue persistence
type MergeCandidateRepository interface {
	// FindByID finds a merge candidate by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*MergeCandidate, error)

	// FindByPair finds the candidate for an identity pair in either order
	FindByPair(ctx context.Context, idA, idB uuid.UUID) (*MergeCandidate, error)

	// FindByStatus finds candidates in the given review state
	FindByStatus(ctx context.Context, status MergeCandidateStatus, filter shared.Filter) ([]MergeCandidate, error)

	// FindPendingByIdentity finds pending candidates referencing the identity
	FindPendingByIdentity(ctx context.Context, identityID uuid.UUID) ([]MergeCandidate, error)

	// FindAll finds all candidates matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]MergeCandidate, error)

	// Insert creates a new candidate row. A pair collision returns
	// shared.ErrAlreadyExists, which enqueue treats as success.
	Insert(ctx context.Context, mc *MergeCandidate) error

	// Save updates an existing candidate
	Save(ctx context.Context, mc *MergeCandidate) error

	// Count counts candidates matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// CountByStatus counts candidates in the given review state
	CountByStatus(ctx context.Context, status MergeCandidateStatus) (int64, error)
}
