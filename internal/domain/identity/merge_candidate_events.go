package identity

import (
	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeMergeCandidate = "MergeCandidate"

// Event type constants
const (
	EventTypeMergeCandidateQueued   = "MergeCandidateQueued"
	EventTypeMergeCandidateApproved = "MergeCandidateApproved"
	EventTypeMergeCandidateRejected = "MergeCandidateRejected"
)

// MergeCandidateQueuedEvent is published when a pair enters the review queue
type MergeCandidateQueuedEvent struct {
	shared.BaseDomainEvent
	CandidateID uuid.UUID       `json:"candidate_id"`
	IdentityA   uuid.UUID       `json:"identity_a"`
	IdentityB   uuid.UUID       `json:"identity_b"`
	Confidence  MergeConfidence `json:"confidence"`
	Reason      string          `json:"reason,omitempty"`
}

// NewMergeCandidateQueuedEvent creates a new MergeCandidateQueuedEvent
func NewMergeCandidateQueuedEvent(mc *MergeCandidate) *MergeCandidateQueuedEvent {
	return &MergeCandidateQueuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMergeCandidateQueued, AggregateTypeMergeCandidate, mc.ID),
		CandidateID:     mc.ID,
		IdentityA:       mc.IdentityA,
		IdentityB:       mc.IdentityB,
		Confidence:      mc.Confidence,
		Reason:          mc.Reason,
	}
}

// MergeCandidateApprovedEvent is published when a reviewer approves a merge
type MergeCandidateApprovedEvent struct {
	shared.BaseDomainEvent
	CandidateID uuid.UUID `json:"candidate_id"`
	MasterID    uuid.UUID `json:"master_id"`
	IdentityA   uuid.UUID `json:"identity_a"`
	IdentityB   uuid.UUID `json:"identity_b"`
}

// NewMergeCandidateApprovedEvent creates a new MergeCandidateApprovedEvent
func NewMergeCandidateApprovedEvent(mc *MergeCandidate, masterID uuid.UUID) *MergeCandidateApprovedEvent {
	return &MergeCandidateApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMergeCandidateApproved, AggregateTypeMergeCandidate, mc.ID),
		CandidateID:     mc.ID,
		MasterID:        masterID,
		IdentityA:       mc.IdentityA,
		IdentityB:       mc.IdentityB,
	}
}

// MergeCandidateRejectedEvent is published when a reviewer rejects a pair
type MergeCandidateRejectedEvent struct {
	shared.BaseDomainEvent
	CandidateID uuid.UUID `json:"candidate_id"`
	IdentityA   uuid.UUID `json:"identity_a"`
	IdentityB   uuid.UUID `json:"identity_b"`
}

// NewMergeCandidateRejectedEvent creates a new MergeCandidateRejectedEvent
func NewMergeCandidateRejectedEvent(mc *MergeCandidate) *MergeCandidateRejectedEvent {
	return &MergeCandidateRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMergeCandidateRejected, AggregateTypeMergeCandidate, mc.ID),
		CandidateID:     mc.ID,
		IdentityA:       mc.IdentityA,
		IdentityB:       mc.IdentityB,
	}
}
