package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/identity"
)

// RunFilter defines the filters for querying ingestion runs
type RunFilter struct {
	Kind        *RunKind
	Source      *identity.Source
	Status      *RunStatus
	StartedFrom *time.Time
	StartedTo   *time.Time
}

// RunListResult represents a paginated list of ingestion runs
type RunListResult struct {
	Items      []*Run
	TotalCount int64
	Page       int
	PageSize   int
}

// RunRepository defines the interface for ingestion run persistence
type RunRepository interface {
	// FindByID finds a run by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Run, error)

	// FindAll returns runs with pagination and filtering, newest first
	FindAll(ctx context.Context, filter RunFilter, page, pageSize int) (*RunListResult, error)

	// FindByStatus finds all runs with a specific status
	FindByStatus(ctx context.Context, status RunStatus) ([]*Run, error)

	// FindStale finds non-terminal runs started before the cutoff, for
	// recovery after a restart
	FindStale(ctx context.Context, cutoff time.Time) ([]*Run, error)

	// Save saves a run (create or update)
	Save(ctx context.Context, run *Run) error

	// Delete deletes a run by ID
	Delete(ctx context.Context, id uuid.UUID) error
}
