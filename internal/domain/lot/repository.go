package lot

import "context"

// LotReferenceRepository maintains the persisted copy of the lot reference
// table. Snapshot sync upserts rows by canonical label; rows are never
// deleted, stale years are excluded by query instead.
type LotReferenceRepository interface {
	// FindByCanonical retrieves one reference row by canonical label
	FindByCanonical(ctx context.Context, canonical string) (*LotReference, error)

	// FindByCanonicals retrieves the rows for a set of canonical labels
	FindByCanonicals(ctx context.Context, canonicals []string) ([]LotReference, error)

	// FindByMinYear retrieves rows with manufacturing year at or above minYear
	FindByMinYear(ctx context.Context, minYear int) ([]LotReference, error)

	// FindAll retrieves every reference row
	FindAll(ctx context.Context) ([]LotReference, error)

	// UpsertAll inserts or updates rows keyed by canonical label
	UpsertAll(ctx context.Context, refs []LotReference) error

	// Count returns the number of reference rows
	Count(ctx context.Context) (int64, error)
}
