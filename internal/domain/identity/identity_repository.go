package identity

import (
	"context"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/shared"
)

// CanonicalIdentityRepository defines the interface for identity persistence
type CanonicalIdentityRepository interface {
	// FindByID finds an identity by its ID
	FindByID(ctx context.Context, id uuid.UUID) (*CanonicalIdentity, error)

	// FindByCanonicalKey finds the identity holding the given canonical key
	FindByCanonicalKey(ctx context.Context, key string) (*CanonicalIdentity, error)

	// FindByKeyPrefix finds identities whose canonical key starts with the
	// prefix. The scan is bounded by limit to keep resolution latency flat.
	FindByKeyPrefix(ctx context.Context, prefix string, limit int) ([]CanonicalIdentity, error)

	// FindByEmailDomain finds identities whose stored email ends in the domain
	FindByEmailDomain(ctx context.Context, domain string) ([]CanonicalIdentity, error)

	// FindByIDs finds multiple identities by their IDs
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]CanonicalIdentity, error)

	// FindAll finds all identities matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]CanonicalIdentity, error)

	// Insert creates a new identity row. A canonical-key collision returns
	// shared.ErrAlreadyExists so callers can re-query and adopt the winner.
	Insert(ctx context.Context, ident *CanonicalIdentity) error

	// Save updates an existing identity
	Save(ctx context.Context, ident *CanonicalIdentity) error

	// Delete removes an identity (merge cleanup only)
	Delete(ctx context.Context, id uuid.UUID) error

	// Count counts identities matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// ExistsByCanonicalKey checks whether a canonical key is already taken
	ExistsByCanonicalKey(ctx context.Context, key string) (bool, error)
}
