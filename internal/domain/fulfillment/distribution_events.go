package fulfillment

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeDistribution = "DistributionRecord"

// Event type constants
const (
	EventTypeDistributionCreated = "DistributionCreated"
	EventTypeDistributionMatched = "DistributionMatched"
)

// DistributionCreatedEvent is published when a fulfillment line is ingested
type DistributionCreatedEvent struct {
	shared.BaseDomainEvent
	DistributionID  uuid.UUID       `json:"distribution_id"`
	OrderNumberNorm string          `json:"order_number_norm,omitempty"`
	SKU             string          `json:"sku"`
	Quantity        decimal.Decimal `json:"quantity"`
	LotCanonical    string          `json:"lot_canonical,omitempty"`
	Source          identity.Source `json:"source"`
	ExternalKey     string          `json:"external_key"`
}

// NewDistributionCreatedEvent creates a new DistributionCreatedEvent
func NewDistributionCreatedEvent(rec *DistributionRecord) *DistributionCreatedEvent {
	return &DistributionCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDistributionCreated, AggregateTypeDistribution, rec.ID),
		DistributionID:  rec.ID,
		OrderNumberNorm: rec.OrderNumberNorm,
		SKU:             rec.SKU,
		Quantity:        rec.Quantity,
		LotCanonical:    rec.LotCanonical,
		Source:          rec.Source,
		ExternalKey:     rec.ExternalKey,
	}
}

// DistributionMatchedEvent is published when a record links to its order
type DistributionMatchedEvent struct {
	shared.BaseDomainEvent
	DistributionID uuid.UUID       `json:"distribution_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	SKU            string          `json:"sku"`
	Quantity       decimal.Decimal `json:"quantity"`
}

// NewDistributionMatchedEvent creates a new DistributionMatchedEvent
func NewDistributionMatchedEvent(rec *DistributionRecord, orderID uuid.UUID) *DistributionMatchedEvent {
	return &DistributionMatchedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeDistributionMatched, AggregateTypeDistribution, rec.ID),
		DistributionID:  rec.ID,
		OrderID:         orderID,
		SKU:             rec.SKU,
		Quantity:        rec.Quantity,
	}
}
