package fulfillment

import (
	"context"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// OrderRepository defines the interface for order persistence
type OrderRepository interface {
	// FindByID finds an order by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindBySourceKey finds an order by its (source, external_key) pair
	FindBySourceKey(ctx context.Context, source identity.Source, externalKey string) (*Order, error)

	// FindMatchableByNumber finds non-cancelled orders with the normalized number
	FindMatchableByNumber(ctx context.Context, orderNumberNorm string) ([]Order, error)

	// FindByIdentity finds orders linked to a canonical identity
	FindByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) ([]Order, error)

	// FindMatchable finds non-cancelled orders for fallback scans, oldest
	// first, bounded by limit
	FindMatchable(ctx context.Context, limit int) ([]Order, error)

	// FindAll finds all orders matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]Order, error)

	// Insert creates a new order row. A (source, external_key) collision
	// returns shared.ErrAlreadyExists for idempotent feed re-delivery.
	Insert(ctx context.Context, order *Order) error

	// Save updates an existing order
	Save(ctx context.Context, order *Order) error

	// Count counts orders matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// CountByStatus counts orders in the given status
	CountByStatus(ctx context.Context, status OrderStatus) (int64, error)

	// UpdateIdentityReferences repoints orders from one identity to another
	// during a merge. Returns the number of rows moved.
	UpdateIdentityReferences(ctx context.Context, fromID, toID uuid.UUID) (int64, error)

	// ExistsBySourceKey checks whether a (source, external_key) pair exists
	ExistsBySourceKey(ctx context.Context, source identity.Source, externalKey string) (bool, error)
}

// DistributionRecordRepository defines the interface for distribution persistence
type DistributionRecordRepository interface {
	// FindByID finds a distribution record by ID
	FindByID(ctx context.Context, id uuid.UUID) (*DistributionRecord, error)

	// FindBySourceKey finds a record by its (source, external_key) pair
	FindBySourceKey(ctx context.Context, source identity.Source, externalKey string) (*DistributionRecord, error)

	// FindUnmatchedByNumber finds unmatched records with the normalized number
	FindUnmatchedByNumber(ctx context.Context, orderNumberNorm string) ([]DistributionRecord, error)

	// FindUnmatched finds unmatched records for fallback scans and review
	// listings, oldest first, bounded by limit
	FindUnmatched(ctx context.Context, limit int) ([]DistributionRecord, error)

	// FindByOrder finds records matched to an order
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]DistributionRecord, error)

	// FindByIdentity finds records linked to a canonical identity
	FindByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) ([]DistributionRecord, error)

	// FindAll finds all records matching the filter
	FindAll(ctx context.Context, filter shared.Filter) ([]DistributionRecord, error)

	// Insert creates a new record row. A (source, external_key) collision
	// returns shared.ErrAlreadyExists for idempotent feed re-delivery.
	Insert(ctx context.Context, rec *DistributionRecord) error

	// Save updates an existing record
	Save(ctx context.Context, rec *DistributionRecord) error

	// SaveMatch persists a just-linked record, guarded so that a concurrent
	// matcher cannot double-write: the update only applies while the stored
	// matched_order_id is still null. Returns shared.ErrConcurrencyConflict
	// when the guard fails.
	SaveMatch(ctx context.Context, rec *DistributionRecord) error

	// Count counts records matching the filter
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// CountUnmatched counts records with no matched order
	CountUnmatched(ctx context.Context) (int64, error)

	// UpdateIdentityReferences repoints records from one identity to another
	// during a merge, refreshing the denormalized display name. Returns the
	// number of rows moved.
	UpdateIdentityReferences(ctx context.Context, fromID, toID uuid.UUID, toDisplayName string) (int64, error)
}
