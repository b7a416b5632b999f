package fulfillment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// DistributionRecord is the fulfillment-side record of shipped goods.
//
// SKU, Quantity and LotRaw are measurement fields: they are immutable after
// creation. The matcher may only write MatchedOrderID, CanonicalIdentityID
// and the copied IdentityDisplayName. (Source, ExternalKey) is unique for
// idempotent feed ingestion.
type DistributionRecord struct {
	shared.BaseAggregateRoot
	OrderNumberRaw      string          `gorm:"type:varchar(50)"`
	OrderNumberNorm     string          `gorm:"type:varchar(50);index"`
	SKU                 string          `gorm:"type:varchar(50);not null;index"`
	Quantity            decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	LotRaw              string          `gorm:"type:varchar(100)"`
	LotCanonical        string          `gorm:"type:varchar(100);index"`
	ShipDate            *time.Time      `gorm:"index"`
	Source              identity.Source `gorm:"type:varchar(20);not null;uniqueIndex:idx_distribution_source_key,priority:1"`
	ExternalKey         string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_distribution_source_key,priority:2"`
	ShipToCity          string          `gorm:"type:varchar(100)"`
	ShipToState         string          `gorm:"type:varchar(100)"`
	ShipToPostalCode    string          `gorm:"type:varchar(20)"`
	MatchedOrderID      *uuid.UUID      `gorm:"type:uuid;index"`
	CanonicalIdentityID *uuid.UUID      `gorm:"type:uuid;index"`
	IdentityDisplayName string          `gorm:"type:varchar(200)"`
	MatchedAt           *time.Time
}

// TableName returns the table name for GORM
func (DistributionRecord) TableName() string {
	return "distribution_records"
}

// NewDistributionInput carries the raw fulfillment line fields. The order
// number and ship-to address are optional; records without them can only be
// matched through the remaining signals.
type NewDistributionInput struct {
	OrderNumber  string
	SKU          string
	Quantity     decimal.Decimal
	LotRaw       string
	LotCanonical string
	ShipDate     *time.Time
	Source       identity.Source
	ExternalKey  string
	ShipToCity   string
	ShipToState  string
	ShipToZip    string
}

// NewDistributionRecord creates a new distribution record from a raw
// fulfillment line. The lot label must already be canonicalized.
func NewDistributionRecord(in NewDistributionInput) (*DistributionRecord, error) {
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if len(sku) > 50 {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot exceed 50 characters")
	}
	if in.Quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if !in.Source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Source must be 'feed', 'document', or 'manual'")
	}
	externalKey := strings.TrimSpace(in.ExternalKey)
	if externalKey == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_KEY", "External key cannot be empty")
	}
	if len(externalKey) > 100 {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_KEY", "External key cannot exceed 100 characters")
	}
	orderNumber := strings.TrimSpace(in.OrderNumber)
	if len(orderNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot exceed 50 characters")
	}

	rec := &DistributionRecord{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumberRaw:    orderNumber,
		OrderNumberNorm:   NormalizeOrderNumber(orderNumber),
		SKU:               sku,
		Quantity:          in.Quantity,
		LotRaw:            strings.TrimSpace(in.LotRaw),
		LotCanonical:      strings.TrimSpace(in.LotCanonical),
		ShipDate:          in.ShipDate,
		Source:            in.Source,
		ExternalKey:       externalKey,
		ShipToCity:        strings.TrimSpace(in.ShipToCity),
		ShipToState:       strings.TrimSpace(in.ShipToState),
		ShipToPostalCode:  strings.TrimSpace(in.ShipToZip),
	}

	rec.AddDomainEvent(NewDistributionCreatedEvent(rec))

	return rec, nil
}

// IsMatched returns true when a commercial order has been identified
func (d *DistributionRecord) IsMatched() bool {
	return d.MatchedOrderID != nil
}

// HasShipToAddress returns true when the recorded ship-to triple is complete
func (d *DistributionRecord) HasShipToAddress() bool {
	return d.ShipToCity != "" && d.ShipToState != "" && d.ShipToPostalCode != ""
}

// Match links the record to a commercial order and copies identity fields
// from the order side. Measurement fields are never touched. Matching an
// already-matched record is an error; callers check IsMatched first and
// treat a repeat as a no-op.
func (d *DistributionRecord) Match(orderID, identityID uuid.UUID, displayName string) error {
	if d.MatchedOrderID != nil {
		return shared.NewDomainError("INVALID_STATE", "Distribution record is already matched")
	}
	if orderID == uuid.Nil {
		return shared.NewDomainError("INVALID_ORDER", "Matched order ID cannot be empty")
	}
	if identityID == uuid.Nil {
		return shared.NewDomainError("INVALID_IDENTITY", "Matched identity ID cannot be empty")
	}

	now := time.Now()
	d.MatchedOrderID = &orderID
	d.CanonicalIdentityID = &identityID
	d.IdentityDisplayName = strings.TrimSpace(displayName)
	d.MatchedAt = &now
	d.UpdatedAt = now
	d.IncrementVersion()

	d.AddDomainEvent(NewDistributionMatchedEvent(d, orderID))

	return nil
}
