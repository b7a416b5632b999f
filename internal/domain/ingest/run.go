package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// RunKind represents the record type an ingestion run processes
type RunKind string

const (
	RunKindOrders        RunKind = "orders"
	RunKindDistributions RunKind = "distributions"
	RunKindLotReferences RunKind = "lot_references"
)

// IsValid checks if the run kind is valid
func (k RunKind) IsValid() bool {
	switch k {
	case RunKindOrders, RunKindDistributions, RunKindLotReferences:
		return true
	}
	return false
}

// RunStatus represents the status of an ingestion run
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
)

// IsValid checks if the status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusProcessing, RunStatusCompleted,
		RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Report is the caller-visible outcome summary of an ingestion run
type Report struct {
	Created          int `json:"created"`
	Matched          int `json:"matched"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	Failed           int `json:"failed"`
}

// Add folds another report into this one
func (r *Report) Add(other Report) {
	r.Created += other.Created
	r.Matched += other.Matched
	r.SkippedDuplicate += other.SkippedDuplicate
	r.Failed += other.Failed
}

// RunErrorDetail identifies one failed record with enough detail to locate
// and reprocess it. The run's source plus the external key is the record's
// idempotency identity.
type RunErrorDetail struct {
	Row         int    `json:"row,omitempty"`
	ExternalKey string `json:"external_key,omitempty"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// Run tracks one batch ingestion: its page-wise progress and its outcome
// summary. Pages commit one at a time, so a run that dies mid-way keeps the
// counters of every fully committed page and nothing from the in-flight one.
type Run struct {
	shared.BaseAggregateRoot
	Kind             RunKind          `json:"kind"`
	Source           identity.Source  `json:"source"`
	FileName         string           `json:"file_name,omitempty"`
	FileSize         int64            `json:"file_size,omitempty"`
	TotalRows        int              `json:"total_rows"`
	Created          int              `json:"created"`
	Matched          int              `json:"matched"`
	SkippedDuplicate int              `json:"skipped_duplicate"`
	Failed           int              `json:"failed"`
	PagesCommitted   int              `json:"pages_committed"`
	Status           RunStatus        `json:"status"`
	ErrorDetails     []RunErrorDetail `json:"error_details,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
}

// NewRun creates a pending ingestion run. FileName and FileSize describe an
// uploaded file and stay empty for feed pulls.
func NewRun(kind RunKind, source identity.Source, fileName string, fileSize int64) (*Run, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_RUN_KIND", fmt.Sprintf("Invalid run kind: %s", kind))
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", fmt.Sprintf("Invalid source: %s", source))
	}
	if fileSize < 0 {
		return nil, shared.NewDomainError("INVALID_FILE_SIZE", "File size cannot be negative")
	}

	return &Run{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Kind:              kind,
		Source:            source,
		FileName:          fileName,
		FileSize:          fileSize,
		Status:            RunStatusPending,
		ErrorDetails:      make([]RunErrorDetail, 0),
	}, nil
}

// StartProcessing marks the run as started
func (r *Run) StartProcessing(totalRows int) error {
	if r.Status != RunStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot start processing from state: %s", r.Status))
	}
	if totalRows < 0 {
		return shared.NewDomainError("INVALID_TOTAL_ROWS", "Total rows cannot be negative")
	}

	r.Status = RunStatusProcessing
	r.TotalRows = totalRows
	now := time.Now()
	r.StartedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	return nil
}

// RecordPage folds one committed page into the running counters
func (r *Run) RecordPage(page Report, errors []RunErrorDetail) error {
	if r.Status != RunStatusProcessing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot record a page in state: %s", r.Status))
	}

	r.Created += page.Created
	r.Matched += page.Matched
	r.SkippedDuplicate += page.SkippedDuplicate
	r.Failed += page.Failed
	r.ErrorDetails = append(r.ErrorDetails, errors...)
	r.PagesCommitted++
	r.UpdatedAt = time.Now()
	r.IncrementVersion()

	return nil
}

// Complete finishes the run. The run counts as failed only when failures
// occurred and no record was created, matched, or recognized as a duplicate.
func (r *Run) Complete() error {
	if r.Status != RunStatusProcessing {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete from state: %s", r.Status))
	}

	status := RunStatusCompleted
	if r.Failed > 0 && r.Created == 0 && r.Matched == 0 && r.SkippedDuplicate == 0 {
		status = RunStatusFailed
	}

	r.Status = status
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRunCompletedEvent(r))

	return nil
}

// Fail marks the run as failed
func (r *Run) Fail(errors []RunErrorDetail) error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot fail from terminal state: %s", r.Status))
	}

	r.Status = RunStatusFailed
	r.ErrorDetails = append(r.ErrorDetails, errors...)
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRunCompletedEvent(r))

	return nil
}

// Cancel marks the run as cancelled. Cancellation is cooperative: the caller
// stops accepting new pages and finishes the in-flight one first, so the
// counters stay consistent with what was committed.
func (r *Run) Cancel() error {
	if r.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel from terminal state: %s", r.Status))
	}

	r.Status = RunStatusCancelled
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRunCompletedEvent(r))

	return nil
}

// Report returns the outcome summary of the run
func (r *Run) Report() Report {
	return Report{
		Created:          r.Created,
		Matched:          r.Matched,
		SkippedDuplicate: r.SkippedDuplicate,
		Failed:           r.Failed,
	}
}

// IsCompleted returns true if the run completed (possibly with partial errors)
func (r *Run) IsCompleted() bool {
	return r.Status == RunStatusCompleted
}

// HasErrors returns true if any record failed
func (r *Run) HasErrors() bool {
	return len(r.ErrorDetails) > 0
}

// ErrorDetailsJSON returns the error details as a JSON string
func (r *Run) ErrorDetailsJSON() (string, error) {
	if len(r.ErrorDetails) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(r.ErrorDetails)
	if err != nil {
		return "", fmt.Errorf("failed to marshal error details: %w", err)
	}
	return string(data), nil
}

// SetErrorDetailsFromJSON parses error details from a JSON string
func (r *Run) SetErrorDetailsFromJSON(jsonStr string) error {
	if jsonStr == "" || jsonStr == "[]" {
		r.ErrorDetails = make([]RunErrorDetail, 0)
		return nil
	}
	var details []RunErrorDetail
	if err := json.Unmarshal([]byte(jsonStr), &details); err != nil {
		return fmt.Errorf("failed to unmarshal error details: %w", err)
	}
	r.ErrorDetails = details
	return nil
}

// Duration returns how long the run has been processing
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if r.CompletedAt != nil {
		end = *r.CompletedAt
	}
	return end.Sub(*r.StartedAt)
}
