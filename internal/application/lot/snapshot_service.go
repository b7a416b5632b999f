package lot

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/lot"
	"github.com/reconcile/backend/internal/domain/shared"
)

// SnapshotData is the parsed content of one reference source fetch
type SnapshotData struct {
	Corrections map[string]string
	References  []lot.LotReference
}

// SnapshotSource fetches the externally maintained lot reference table
type SnapshotSource interface {
	// Fetch retrieves and parses the current reference table
	Fetch(ctx context.Context) (*SnapshotData, error)

	// Describe names the source for logs and run records
	Describe() string
}

// SyncResponse summarizes one snapshot sync
type SyncResponse struct {
	RunID       uuid.UUID     `json:"run_id"`
	Source      string        `json:"source"`
	References  int           `json:"references"`
	Corrections int           `json:"corrections"`
	Report      ingest.Report `json:"report"`
}

// SnapshotStatus describes the snapshot currently served
type SnapshotStatus struct {
	References  int        `json:"references"`
	Corrections int        `json:"corrections"`
	LoadedAt    *time.Time `json:"loaded_at,omitempty"`
}

// SnapshotService owns the in-process lot reference snapshot. Reference rows
// are synced from an external source into the repository and held in memory
// as an immutable snapshot; canonicalization and ledger computation read the
// snapshot, never the repository.
//
// The correction map lives only in the snapshot. Records canonicalized
// before a correction lands keep their stored label; the ledger re-resolves
// stored labels through the current snapshot, so late corrections still
// reach the figures.
type SnapshotService struct {
	refRepo        lot.LotReferenceRepository
	runRepo        ingest.RunRepository
	source         SnapshotSource
	eventPublisher shared.EventPublisher
	logger         *zap.Logger

	mu          sync.RWMutex
	current     *lot.RefSnapshot
	corrections map[string]string
	loadedAt    *time.Time
}

// NewSnapshotService creates a new snapshot service. The source is optional;
// without one the snapshot is built from the repository alone.
func NewSnapshotService(
	refRepo lot.LotReferenceRepository,
	runRepo ingest.RunRepository,
	source SnapshotSource,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *SnapshotService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotService{
		refRepo:        refRepo,
		runRepo:        runRepo,
		source:         source,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Current returns the snapshot being served, building one from the
// repository on first use. Callers hold the returned value for their whole
// operation; a sync landing mid-operation swaps the served snapshot without
// touching copies already handed out.
func (s *SnapshotService) Current(ctx context.Context) (lot.RefSnapshot, error) {
	s.mu.RLock()
	snap := s.current
	s.mu.RUnlock()
	if snap != nil {
		return *snap, nil
	}
	return s.rebuild(ctx, nil)
}

// Canonicalize resolves a raw lot label against the current snapshot. With
// no reference rows loaded it degrades to label normalization alone.
func (s *SnapshotService) Canonicalize(ctx context.Context, raw string) (lot.Info, error) {
	snap, err := s.Current(ctx)
	if err != nil {
		return lot.Info{}, err
	}
	return snap.Canonicalize(raw), nil
}

// Status reports what the served snapshot contains
func (s *SnapshotService) Status(ctx context.Context) (*SnapshotStatus, error) {
	snap, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return &SnapshotStatus{
		References:  len(snap.References()),
		Corrections: len(s.corrections),
		LoadedAt:    s.loadedAt,
	}, nil
}

// SyncFromSource pulls the reference table from the configured source,
// upserts the rows, and swaps the served snapshot. The fetch runs before
// any write and outside any transaction. Each sync is recorded as an
// ingestion run.
func (s *SnapshotService) SyncFromSource(ctx context.Context) (*SyncResponse, error) {
	if s.source == nil {
		return nil, shared.NewDomainError("NO_SNAPSHOT_SOURCE", "No lot reference source is configured")
	}

	run, err := ingest.NewRun(ingest.RunKindLotReferences, identity.SourceFeed, s.source.Describe(), 0)
	if err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}

	data, err := s.source.Fetch(ctx)
	if err != nil {
		s.failRun(ctx, run, err)
		return nil, err
	}

	if serr := run.StartProcessing(len(data.References)); serr != nil {
		return nil, serr
	}
	if serr := s.runRepo.Save(ctx, run); serr != nil {
		return nil, serr
	}

	if err := s.refRepo.UpsertAll(ctx, data.References); err != nil {
		s.failRun(ctx, run, err)
		return nil, err
	}

	if err := run.RecordPage(ingest.Report{Created: len(data.References)}, nil); err != nil {
		return nil, err
	}
	if err := run.Complete(); err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, run)

	// The repository keeps every row ever synced; the snapshot serves the
	// union, with stale years excluded by query at read time.
	snap, err := s.rebuild(ctx, data.Corrections)
	if err != nil {
		return nil, err
	}

	s.logger.Info("lot reference snapshot synced",
		zap.String("source", s.source.Describe()),
		zap.Int("references", len(snap.References())),
		zap.Int("corrections", len(data.Corrections)))

	return &SyncResponse{
		RunID:       run.ID,
		Source:      s.source.Describe(),
		References:  len(snap.References()),
		Corrections: len(data.Corrections),
		Report:      run.Report(),
	}, nil
}

// rebuild loads every reference row and swaps the served snapshot. A nil
// corrections map keeps the one from the previous sync.
func (s *SnapshotService) rebuild(ctx context.Context, corrections map[string]string) (lot.RefSnapshot, error) {
	refs, err := s.refRepo.FindAll(ctx)
	if err != nil {
		return lot.RefSnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if corrections != nil {
		s.corrections = corrections
	}
	snap := lot.NewRefSnapshot(s.corrections, refs)
	now := time.Now()
	s.current = &snap
	s.loadedAt = &now
	return snap, nil
}

// failRun marks the run failed and saves it, keeping the original error
func (s *SnapshotService) failRun(ctx context.Context, run *ingest.Run, cause error) {
	detail := ingest.RunErrorDetail{Code: "SYNC_FAILED", Message: cause.Error()}
	if ferr := run.Fail([]ingest.RunErrorDetail{detail}); ferr != nil {
		s.logger.Warn("could not mark sync run failed", zap.Error(ferr))
		return
	}
	if serr := s.runRepo.Save(ctx, run); serr != nil {
		s.logger.Warn("could not save failed sync run", zap.Error(serr))
	}
	s.publishDomainEvents(ctx, run)
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *SnapshotService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events", zap.Error(err))
	}
	root.ClearDomainEvents()
}
