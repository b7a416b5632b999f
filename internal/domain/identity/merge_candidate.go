package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/shared"
)

// MergeCandidateStatus represents the review state of a queued merge
type MergeCandidateStatus string

const (
	MergeStatusPending    MergeCandidateStatus = "pending"
	MergeStatusMerged     MergeCandidateStatus = "merged"
	MergeStatusRejected   MergeCandidateStatus = "rejected"
	MergeStatusSuperseded MergeCandidateStatus = "superseded" // Pair became moot after another merge removed one side
)

// IsValid checks if the status is a known MergeCandidateStatus
func (s MergeCandidateStatus) IsValid() bool {
	switch s {
	case MergeStatusPending, MergeStatusMerged, MergeStatusRejected, MergeStatusSuperseded:
		return true
	}
	return false
}

// IsTerminal returns true if the status permits no further transitions
func (s MergeCandidateStatus) IsTerminal() bool {
	return s == MergeStatusMerged || s == MergeStatusRejected || s == MergeStatusSuperseded
}

// String returns the string representation of MergeCandidateStatus
func (s MergeCandidateStatus) String() string {
	return string(s)
}

// MergeConfidence grades how a candidate pair was produced
type MergeConfidence string

const (
	ConfidenceWeak   MergeConfidence = "weak"   // Resolver weak-tier similarity
	ConfidenceManual MergeConfidence = "manual" // Operator-flagged pair
)

// IsValid checks if the confidence grade is known
func (c MergeConfidence) IsValid() bool {
	return c == ConfidenceWeak || c == ConfidenceManual
}

// MergeCandidate is a queued, human-reviewed proposal that two canonical
// identities describe the same real-world entity. The pair is unordered:
// IdentityA always holds the smaller UUID so (A,B) and (B,A) collide on the
// same uniqueness constraint.
type MergeCandidate struct {
	shared.BaseAggregateRoot
	IdentityA  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_merge_pair,priority:1"`
	IdentityB  uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_merge_pair,priority:2"`
	Confidence MergeConfidence      `gorm:"type:varchar(20);not null"`
	Reason     string               `gorm:"type:text"`
	Status     MergeCandidateStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	MasterID   *uuid.UUID           `gorm:"type:uuid"` // Winning identity, set on merge
	ReviewedAt *time.Time
}

// TableName returns the table name for GORM
func (MergeCandidate) TableName() string {
	return "merge_candidates"
}

// NewMergeCandidate creates a pending merge candidate for an identity pair.
// The pair is stored in normalized order regardless of argument order.
func NewMergeCandidate(idA, idB uuid.UUID, confidence MergeConfidence, reason string) (*MergeCandidate, error) {
	if idA == uuid.Nil || idB == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PAIR", "Merge candidate requires two identity IDs")
	}
	if idA == idB {
		return nil, shared.NewDomainError("INVALID_PAIR", "Merge candidate cannot pair an identity with itself")
	}
	if !confidence.IsValid() {
		return nil, shared.NewDomainError("INVALID_CONFIDENCE", "Confidence must be 'weak' or 'manual'")
	}

	a, b := NormalizePair(idA, idB)

	mc := &MergeCandidate{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		IdentityA:         a,
		IdentityB:         b,
		Confidence:        confidence,
		Reason:            strings.TrimSpace(reason),
		Status:            MergeStatusPending,
	}

	mc.AddDomainEvent(NewMergeCandidateQueuedEvent(mc))

	return mc, nil
}

// NormalizePair orders two identity IDs so the lexicographically smaller
// UUID comes first. Both orderings of a pair map to the same stored row.
func NormalizePair(idA, idB uuid.UUID) (uuid.UUID, uuid.UUID) {
	if strings.Compare(idA.String(), idB.String()) > 0 {
		return idB, idA
	}
	return idA, idB
}

// Involves returns true if the candidate references the given identity
func (m *MergeCandidate) Involves(identityID uuid.UUID) bool {
	return m.IdentityA == identityID || m.IdentityB == identityID
}

// Other returns the pair member that is not the given identity
func (m *MergeCandidate) Other(identityID uuid.UUID) (uuid.UUID, error) {
	switch identityID {
	case m.IdentityA:
		return m.IdentityB, nil
	case m.IdentityB:
		return m.IdentityA, nil
	}
	return uuid.Nil, shared.NewDomainError("INVALID_PAIR", "Identity is not part of this merge candidate")
}

// Approve marks the candidate merged with the chosen master. The master must
// be one of the pair members and the candidate must still be pending.
func (m *MergeCandidate) Approve(masterID uuid.UUID) error {
	if m.Status != MergeStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending merge candidates can be approved")
	}
	if !m.Involves(masterID) {
		return shared.NewDomainError("INVALID_MASTER", "Master must be one of the paired identities")
	}

	now := time.Now()
	m.Status = MergeStatusMerged
	m.MasterID = &masterID
	m.ReviewedAt = &now
	m.UpdatedAt = now
	m.IncrementVersion()

	m.AddDomainEvent(NewMergeCandidateApprovedEvent(m, masterID))

	return nil
}

// Reject marks the candidate rejected. No identity data changes.
func (m *MergeCandidate) Reject() error {
	if m.Status != MergeStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending merge candidates can be rejected")
	}

	now := time.Now()
	m.Status = MergeStatusRejected
	m.ReviewedAt = &now
	m.UpdatedAt = now
	m.IncrementVersion()

	m.AddDomainEvent(NewMergeCandidateRejectedEvent(m))

	return nil
}

// Supersede marks a pending candidate moot because one of its identities was
// deleted by another approved merge.
func (m *MergeCandidate) Supersede() error {
	if m.Status != MergeStatusPending {
		return shared.NewDomainError("INVALID_STATE", "Only pending merge candidates can be superseded")
	}

	now := time.Now()
	m.Status = MergeStatusSuperseded
	m.ReviewedAt = &now
	m.UpdatedAt = now
	m.IncrementVersion()

	return nil
}

// IsPending returns true if the candidate awaits review
func (m *MergeCandidate) IsPending() bool {
	return m.Status == MergeStatusPending
}
