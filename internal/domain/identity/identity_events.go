package identity

import (
	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeIdentity = "CanonicalIdentity"

// Event type constants
const (
	EventTypeIdentityCreated  = "IdentityCreated"
	EventTypeIdentityResolved = "IdentityResolved"
	EventTypeIdentityEnriched = "IdentityEnriched"
	EventTypeIdentityMerged   = "IdentityMerged"
)

// IdentityCreatedEvent is published when a new canonical identity is created
type IdentityCreatedEvent struct {
	shared.BaseDomainEvent
	IdentityID   uuid.UUID `json:"identity_id"`
	CanonicalKey string    `json:"canonical_key"`
	DisplayName  string    `json:"display_name"`
	Provenance   Source    `json:"provenance"`
}

// NewIdentityCreatedEvent creates a new IdentityCreatedEvent
func NewIdentityCreatedEvent(ident *CanonicalIdentity) *IdentityCreatedEvent {
	return &IdentityCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityCreated, AggregateTypeIdentity, ident.ID),
		IdentityID:      ident.ID,
		CanonicalKey:    ident.CanonicalKey,
		DisplayName:     ident.DisplayName,
		Provenance:      ident.Provenance,
	}
}

// IdentityResolvedEvent is published after every successful resolution and
// records which tier linked the candidate. Unlike IdentityCreated it also
// fires when an existing identity was reused.
type IdentityResolvedEvent struct {
	shared.BaseDomainEvent
	IdentityID   uuid.UUID `json:"identity_id"`
	CanonicalKey string    `json:"canonical_key"`
	Tier         MatchTier `json:"tier"`
	Created      bool      `json:"created"`
}

// NewIdentityResolvedEvent creates a new IdentityResolvedEvent
func NewIdentityResolvedEvent(ident *CanonicalIdentity, tier MatchTier, created bool) *IdentityResolvedEvent {
	return &IdentityResolvedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityResolved, AggregateTypeIdentity, ident.ID),
		IdentityID:      ident.ID,
		CanonicalKey:    ident.CanonicalKey,
		Tier:            tier,
		Created:         created,
	}
}

// IdentityEnrichedEvent is published when blank fields are inherited from a
// later observation of the same identity
type IdentityEnrichedEvent struct {
	shared.BaseDomainEvent
	IdentityID   uuid.UUID `json:"identity_id"`
	CanonicalKey string    `json:"canonical_key"`
	FilledFields []string  `json:"filled_fields"`
}

// NewIdentityEnrichedEvent creates a new IdentityEnrichedEvent
func NewIdentityEnrichedEvent(ident *CanonicalIdentity, filled []string) *IdentityEnrichedEvent {
	return &IdentityEnrichedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityEnriched, AggregateTypeIdentity, ident.ID),
		IdentityID:      ident.ID,
		CanonicalKey:    ident.CanonicalKey,
		FilledFields:    filled,
	}
}

// IdentityMergedEvent is published when a duplicate identity is absorbed
// into a master during merge approval
type IdentityMergedEvent struct {
	shared.BaseDomainEvent
	MasterID      uuid.UUID `json:"master_id"`
	DuplicateID   uuid.UUID `json:"duplicate_id"`
	MasterKey     string    `json:"master_key"`
	DuplicateKey  string    `json:"duplicate_key"`
	DuplicateName string    `json:"duplicate_name"`
	MasterDisplay string    `json:"master_display_name"`
}

// NewIdentityMergedEvent creates a new IdentityMergedEvent
func NewIdentityMergedEvent(master, dup *CanonicalIdentity) *IdentityMergedEvent {
	return &IdentityMergedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeIdentityMerged, AggregateTypeIdentity, master.ID),
		MasterID:        master.ID,
		DuplicateID:     dup.ID,
		MasterKey:       master.CanonicalKey,
		DuplicateKey:    dup.CanonicalKey,
		DuplicateName:   dup.DisplayName,
		MasterDisplay:   master.DisplayName,
	}
}
