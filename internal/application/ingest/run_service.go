package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/ingest"
	"github.com/reconcile/backend/internal/domain/shared"
)

// ListRunsRequest filters the run history listing. Unknown filter values
// are ignored rather than rejected.
type ListRunsRequest struct {
	Kind        string
	Source      string
	Status      string
	StartedFrom *time.Time
	StartedTo   *time.Time
	Page        int
	PageSize    int
}

// RunResponse represents an ingestion run in API responses
type RunResponse struct {
	ID             uuid.UUID               `json:"id"`
	Kind           string                  `json:"kind"`
	Source         string                  `json:"source"`
	FileName       string                  `json:"file_name,omitempty"`
	FileSize       int64                   `json:"file_size,omitempty"`
	Status         string                  `json:"status"`
	TotalRows      int                     `json:"total_rows"`
	PagesCommitted int                     `json:"pages_committed"`
	Report         ingest.Report           `json:"report"`
	ErrorDetails   []ingest.RunErrorDetail `json:"error_details,omitempty"`
	StartedAt      *time.Time              `json:"started_at,omitempty"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// ToRunResponse converts a domain run to its response representation
func ToRunResponse(run *ingest.Run) RunResponse {
	return RunResponse{
		ID:             run.ID,
		Kind:           string(run.Kind),
		Source:         string(run.Source),
		FileName:       run.FileName,
		FileSize:       run.FileSize,
		Status:         string(run.Status),
		TotalRows:      run.TotalRows,
		PagesCommitted: run.PagesCommitted,
		Report:         run.Report(),
		ErrorDetails:   run.ErrorDetails,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
	}
}

// RunListResponse is a paginated run listing
type RunListResponse struct {
	Items      []RunResponse `json:"items"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}

// RunService exposes ingestion run history: lookup, listing, cancellation
// and recovery of runs orphaned by a restart
type RunService struct {
	runRepo        ingest.RunRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewRunService creates a new run history service
func NewRunService(runRepo ingest.RunRepository, eventPublisher shared.EventPublisher, logger *zap.Logger) *RunService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunService{
		runRepo:        runRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// GetByID returns a single run with its failure details
func (s *RunService) GetByID(ctx context.Context, id uuid.UUID) (*RunResponse, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToRunResponse(run)
	return &resp, nil
}

// List returns a page of run history matching the request filters
func (s *RunService) List(ctx context.Context, req ListRunsRequest) (*RunListResponse, error) {
	filter := ingest.RunFilter{
		StartedFrom: req.StartedFrom,
		StartedTo:   req.StartedTo,
	}
	if req.Kind != "" {
		kind := ingest.RunKind(req.Kind)
		if kind.IsValid() {
			filter.Kind = &kind
		}
	}
	if req.Source != "" {
		source := identity.Source(req.Source)
		if source.IsValid() {
			filter.Source = &source
		}
	}
	if req.Status != "" {
		status := ingest.RunStatus(req.Status)
		if status.IsValid() {
			filter.Status = &status
		}
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	result, err := s.runRepo.FindAll(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]RunResponse, 0, len(result.Items))
	for _, run := range result.Items {
		items = append(items, ToRunResponse(run))
	}
	return &RunListResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PageSize:   result.PageSize,
	}, nil
}

// Cancel asks a running ingestion to stop. The worker sees the stored flag
// at its next page checkpoint, finishes the in-flight page and stops, so
// committed counters stay truthful.
func (s *RunService) Cancel(ctx context.Context, id uuid.UUID) (*RunResponse, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := run.Cancel(); err != nil {
		return nil, err
	}
	if err := s.runRepo.Save(ctx, run); err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, run)

	s.logger.Info("ingestion run cancelled", zap.String("run_id", id.String()))
	resp := ToRunResponse(run)
	return &resp, nil
}

// Delete removes a finished run from history
func (s *RunService) Delete(ctx context.Context, id uuid.UUID) error {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !run.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", "Only finished runs can be deleted")
	}
	return s.runRepo.Delete(ctx, id)
}

// RecoverStale fails runs that were still processing when the process died
// and never resumed. Committed page counters stay as they are; the run just
// stops claiming to be live. Called once on startup.
func (s *RunService) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	stale, err := s.runRepo.FindStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, run := range stale {
		if err := run.Fail([]ingest.RunErrorDetail{{
			Code:    "RUN_INTERRUPTED",
			Message: "Run was interrupted and never resumed; counters reflect committed pages only",
		}}); err != nil {
			s.logger.Warn("could not fail stale run",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
			continue
		}
		if err := s.runRepo.Save(ctx, run); err != nil {
			s.logger.Warn("could not save recovered run",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
			continue
		}
		s.publishDomainEvents(ctx, run)
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("recovered stale ingestion runs", zap.Int("count", recovered))
	}
	return recovered, nil
}

// ErrorsCSV renders a run's failure details as a downloadable CSV. Returns
// the file content and a suggested file name.
func (s *RunService) ErrorsCSV(ctx context.Context, id uuid.UUID) (string, string, error) {
	run, err := s.runRepo.FindByID(ctx, id)
	if err != nil {
		return "", "", err
	}
	if len(run.ErrorDetails) == 0 {
		return "", "", shared.NewDomainError("NO_ERRORS", "Run has no failure details to export")
	}

	var sb strings.Builder
	sb.WriteString("row,external_key,code,message\n")
	for _, d := range run.ErrorDetails {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s\n",
			d.Row, escapeCSV(d.ExternalKey), escapeCSV(d.Code), escapeCSV(d.Message)))
	}

	fileName := fmt.Sprintf("ingest_errors_%s_%s.csv", run.Kind, run.ID.String()[:8])
	return sb.String(), fileName, nil
}

// escapeCSV quotes a value when it would break the CSV structure
func escapeCSV(value string) string {
	if strings.ContainsAny(value, ",\"\n\r") {
		return "\"" + strings.ReplaceAll(value, "\"", "\"\"") + "\""
	}
	return value
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *RunService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
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
