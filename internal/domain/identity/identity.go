package identity

import (
	"strings"
	"time"

	"github.com/reconcile/backend/internal/domain/shared"
)

// Source identifies the channel a candidate or record arrived through
type Source string

const (
	SourceFeed     Source = "feed"     // Programmatic shipment feed
	SourceDocument Source = "document" // Parsed document candidates
	SourceManual   Source = "manual"   // Operator entry
)

// IsValid checks if the source is a known channel
func (s Source) IsValid() bool {
	switch s {
	case SourceFeed, SourceDocument, SourceManual:
		return true
	}
	return false
}

// String returns the string representation of Source
func (s Source) String() string {
	return string(s)
}

// Candidate is an unresolved identity observation from one of the channels.
// Name is the only required field; address and contact fields corroborate
// matches and seed blank fields on the canonical record.
type Candidate struct {
	Name        string
	AddressLine string
	City        string
	State       string
	PostalCode  string
	Email       string
	Phone       string
	Source      Source
}

// Validate checks that the candidate carries enough to resolve
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return shared.NewDomainError("INVALID_CANDIDATE", "Candidate name cannot be empty")
	}
	if len(c.Name) > 200 {
		return shared.NewDomainError("INVALID_CANDIDATE", "Candidate name cannot exceed 200 characters")
	}
	if !c.Source.IsValid() {
		return shared.NewDomainError("INVALID_SOURCE", "Source must be 'feed', 'document', or 'manual'")
	}
	return nil
}

// CanonicalIdentity is the deduplicated representation of one real-world
// customer or organization. It is the aggregate root for identity resolution.
//
// CanonicalKey is unique across all identities. Address and contact fields
// are fill-only: a blank field may be inherited from a later observation,
// a populated field is never overwritten by resolution.
type CanonicalIdentity struct {
	shared.BaseAggregateRoot
	CanonicalKey string `gorm:"type:varchar(200);not null;uniqueIndex"`
	DisplayName  string `gorm:"type:varchar(200);not null"`
	AddressLine  string `gorm:"type:varchar(500)"`
	City         string `gorm:"type:varchar(100)"`
	State        string `gorm:"type:varchar(100)"`
	PostalCode   string `gorm:"type:varchar(20)"`
	Email        string `gorm:"type:varchar(200);index"`
	Phone        string `gorm:"type:varchar(50)"`
	Provenance   Source `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (CanonicalIdentity) TableName() string {
	return "canonical_identities"
}

// NewCanonicalIdentity creates a new canonical identity from a first-sighted
// candidate. The canonical key must already be derived via CanonicalKey.
func NewCanonicalIdentity(canonicalKey string, candidate Candidate) (*CanonicalIdentity, error) {
	if canonicalKey == "" {
		return nil, shared.NewDomainError("INVALID_CANDIDATE", "Candidate name does not normalize to a usable key")
	}
	if len(canonicalKey) > 200 {
		return nil, shared.NewDomainError("INVALID_CANDIDATE", "Canonical key cannot exceed 200 characters")
	}
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	ident := &CanonicalIdentity{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		CanonicalKey:      canonicalKey,
		DisplayName:       strings.TrimSpace(candidate.Name),
		AddressLine:       strings.TrimSpace(candidate.AddressLine),
		City:              strings.TrimSpace(candidate.City),
		State:             strings.TrimSpace(candidate.State),
		PostalCode:        strings.TrimSpace(candidate.PostalCode),
		Email:             strings.TrimSpace(candidate.Email),
		Phone:             strings.TrimSpace(candidate.Phone),
		Provenance:        candidate.Source,
	}

	ident.AddDomainEvent(NewIdentityCreatedEvent(ident))

	return ident, nil
}

// InheritFields fills currently-blank address and contact fields from the
// candidate. Populated fields are left untouched. Returns the names of the
// fields that were filled; an empty slice means the observation added nothing.
func (i *CanonicalIdentity) InheritFields(candidate Candidate) []string {
	filled := make([]string, 0, 6)

	if i.AddressLine == "" && strings.TrimSpace(candidate.AddressLine) != "" {
		i.AddressLine = strings.TrimSpace(candidate.AddressLine)
		filled = append(filled, "address_line")
	}
	if i.City == "" && strings.TrimSpace(candidate.City) != "" {
		i.City = strings.TrimSpace(candidate.City)
		filled = append(filled, "city")
	}
	if i.State == "" && strings.TrimSpace(candidate.State) != "" {
		i.State = strings.TrimSpace(candidate.State)
		filled = append(filled, "state")
	}
	if i.PostalCode == "" && strings.TrimSpace(candidate.PostalCode) != "" {
		i.PostalCode = strings.TrimSpace(candidate.PostalCode)
		filled = append(filled, "postal_code")
	}
	if i.Email == "" && strings.TrimSpace(candidate.Email) != "" {
		i.Email = strings.TrimSpace(candidate.Email)
		filled = append(filled, "email")
	}
	if i.Phone == "" && strings.TrimSpace(candidate.Phone) != "" {
		i.Phone = strings.TrimSpace(candidate.Phone)
		filled = append(filled, "phone")
	}

	if len(filled) > 0 {
		i.UpdatedAt = time.Now()
		i.IncrementVersion()
		i.AddDomainEvent(NewIdentityEnrichedEvent(i, filled))
	}

	return filled
}

// AbsorbDuplicate merges scalar fields from a duplicate identity during an
// approved merge. The master's populated values win; blanks are filled from
// the duplicate. Reference migration is the caller's responsibility.
func (i *CanonicalIdentity) AbsorbDuplicate(dup *CanonicalIdentity) error {
	if dup == nil {
		return shared.NewDomainError("INVALID_MERGE", "Duplicate identity cannot be nil")
	}
	if dup.ID == i.ID {
		return shared.NewDomainError("INVALID_MERGE", "An identity cannot be merged with itself")
	}

	if i.AddressLine == "" {
		i.AddressLine = dup.AddressLine
	}
	if i.City == "" {
		i.City = dup.City
	}
	if i.State == "" {
		i.State = dup.State
	}
	if i.PostalCode == "" {
		i.PostalCode = dup.PostalCode
	}
	if i.Email == "" {
		i.Email = dup.Email
	}
	if i.Phone == "" {
		i.Phone = dup.Phone
	}

	i.UpdatedAt = time.Now()
	i.IncrementVersion()

	i.AddDomainEvent(NewIdentityMergedEvent(i, dup))

	return nil
}

// HasAddress returns true when the comparable address triple is complete
func (i *CanonicalIdentity) HasAddress() bool {
	return i.City != "" && i.State != "" && i.PostalCode != ""
}

// HasEmail returns true if a contact email is stored
func (i *CanonicalIdentity) HasEmail() bool {
	return i.Email != ""
}
