package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/identity"
)

// =============================================================================
// Candidate DTOs
// =============================================================================

// ResolveCandidateRequest represents an identity observation submitted for
// resolution. Name is the only required field.
type ResolveCandidateRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=200"`
	AddressLine string `json:"address_line" binding:"max=500"`
	City        string `json:"city" binding:"max=100"`
	State       string `json:"state" binding:"max=100"`
	PostalCode  string `json:"postal_code" binding:"max=20"`
	Email       string `json:"email" binding:"omitempty,email,max=200"`
	Phone       string `json:"phone" binding:"max=50"`
	Source      string `json:"source" binding:"required,oneof=feed document manual"`
}

// ToCandidate converts the request into a domain candidate
func (r ResolveCandidateRequest) ToCandidate() identity.Candidate {
	return identity.Candidate{
		Name:        r.Name,
		AddressLine: r.AddressLine,
		City:        r.City,
		State:       r.State,
		PostalCode:  r.PostalCode,
		Email:       r.Email,
		Phone:       r.Phone,
		Source:      identity.Source(r.Source),
	}
}

// =============================================================================
// Identity DTOs
// =============================================================================

// IdentityResponse represents a canonical identity in API responses
type IdentityResponse struct {
	ID           uuid.UUID `json:"id"`
	CanonicalKey string    `json:"canonical_key"`
	DisplayName  string    `json:"display_name"`
	AddressLine  string    `json:"address_line"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	PostalCode   string    `json:"postal_code"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Provenance   string    `json:"provenance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int       `json:"version"`
}

// ToIdentityResponse converts a domain identity to its response representation
func ToIdentityResponse(i *identity.CanonicalIdentity) IdentityResponse {
	return IdentityResponse{
		ID:           i.ID,
		CanonicalKey: i.CanonicalKey,
		DisplayName:  i.DisplayName,
		AddressLine:  i.AddressLine,
		City:         i.City,
		State:        i.State,
		PostalCode:   i.PostalCode,
		Email:        i.Email,
		Phone:        i.Phone,
		Provenance:   string(i.Provenance),
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
		Version:      i.Version,
	}
}

// ResolveResponse represents the outcome of resolving a candidate
type ResolveResponse struct {
	Identity         IdentityResponse `json:"identity"`
	Tier             string           `json:"tier"`
	Created          bool             `json:"created"`
	FilledFields     []string         `json:"filled_fields,omitempty"`
	QueuedCandidates []uuid.UUID      `json:"queued_candidates,omitempty"`
}

// ToResolveResponse converts a resolution result to its response representation
func ToResolveResponse(r *ResolveResult) ResolveResponse {
	return ResolveResponse{
		Identity:         ToIdentityResponse(r.Identity),
		Tier:             r.Tier.String(),
		Created:          r.Created,
		FilledFields:     r.FilledFields,
		QueuedCandidates: r.QueuedCandidates,
	}
}

// IdentityListResponse represents a paginated identity listing
type IdentityListResponse struct {
	Items      []IdentityResponse `json:"items"`
	TotalCount int64              `json:"total_count"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
}

// =============================================================================
// Merge candidate DTOs
// =============================================================================

// EnqueueMergeRequest represents an operator-flagged identity pair
type EnqueueMergeRequest struct {
	IdentityA uuid.UUID `json:"identity_a" binding:"required"`
	IdentityB uuid.UUID `json:"identity_b" binding:"required"`
	Reason    string    `json:"reason" binding:"max=500"`
}

// ApproveMergeRequest selects the surviving identity for a queued pair
type ApproveMergeRequest struct {
	MasterID uuid.UUID `json:"master_id" binding:"required"`
}

// MergeCandidateResponse represents a queued merge pair in API responses.
// Display names are carried alongside the IDs so the review queue is
// readable without extra lookups; a name is blank when its identity was
// deleted by a later merge.
type MergeCandidateResponse struct {
	ID            uuid.UUID  `json:"id"`
	IdentityA     uuid.UUID  `json:"identity_a"`
	IdentityB     uuid.UUID  `json:"identity_b"`
	IdentityAName string     `json:"identity_a_name,omitempty"`
	IdentityBName string     `json:"identity_b_name,omitempty"`
	Confidence    string     `json:"confidence"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status"`
	MasterID      *uuid.UUID `json:"master_id,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ToMergeCandidateResponse converts a domain merge candidate to its response
// representation. Names are filled by the service when available.
func ToMergeCandidateResponse(m *identity.MergeCandidate) MergeCandidateResponse {
	return MergeCandidateResponse{
		ID:         m.ID,
		IdentityA:  m.IdentityA,
		IdentityB:  m.IdentityB,
		Confidence: string(m.Confidence),
		Reason:     m.Reason,
		Status:     string(m.Status),
		MasterID:   m.MasterID,
		ReviewedAt: m.ReviewedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// MergeCandidateListResponse represents a paginated merge queue listing
type MergeCandidateListResponse struct {
	Items      []MergeCandidateResponse `json:"items"`
	TotalCount int64                    `json:"total_count"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
}

// MergeApprovalResponse summarizes an executed merge
type MergeApprovalResponse struct {
	CandidateID           uuid.UUID `json:"candidate_id"`
	MasterID              uuid.UUID `json:"master_id"`
	MergedID              uuid.UUID `json:"merged_id"`
	MigratedOrders        int64     `json:"migrated_orders"`
	MigratedDistributions int64     `json:"migrated_distributions"`
	SupersededCandidates  int       `json:"superseded_candidates"`
}
