package ingest

import (
	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeRun = "IngestRun"

// Event type constants
const (
	EventTypeRunCompleted = "RunCompleted"
)

// RunCompletedEvent is published when a batch ingestion reaches a terminal
// state, whatever that state is. Consumers read Status to tell them apart.
type RunCompletedEvent struct {
	shared.BaseDomainEvent
	RunID  uuid.UUID       `json:"run_id"`
	Kind   RunKind         `json:"kind"`
	Source identity.Source `json:"source"`
	Status RunStatus       `json:"status"`
	Report Report          `json:"report"`
}

// NewRunCompletedEvent creates a new RunCompletedEvent
func NewRunCompletedEvent(run *Run) *RunCompletedEvent {
	return &RunCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRunCompleted, AggregateTypeRun, run.ID),
		RunID:           run.ID,
		Kind:            run.Kind,
		Source:          run.Source,
		Status:          run.Status,
		Report:          run.Report(),
	}
}
