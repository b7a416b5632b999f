package fulfillment

import (
	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeOrder = "Order"

// Event type constants
const (
	EventTypeOrderCreated   = "OrderCreated"
	EventTypeOrderMatched   = "OrderMatched"
	EventTypeOrderCancelled = "OrderCancelled"
)

// OrderCreatedEvent is published when a new order is ingested
type OrderCreatedEvent struct {
	shared.BaseDomainEvent
	OrderID         uuid.UUID       `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	OrderNumberNorm string          `json:"order_number_norm"`
	IdentityID      uuid.UUID       `json:"identity_id"`
	Source          identity.Source `json:"source"`
	ExternalKey     string          `json:"external_key"`
}

// NewOrderCreatedEvent creates a new OrderCreatedEvent
func NewOrderCreatedEvent(order *Order) *OrderCreatedEvent {
	return &OrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCreated, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		OrderNumberNorm: order.OrderNumberNorm,
		IdentityID:      order.CanonicalIdentityID,
		Source:          order.Source,
		ExternalKey:     order.ExternalKey,
	}
}

// OrderMatchedEvent is published the first time a distribution links to the order
type OrderMatchedEvent struct {
	shared.BaseDomainEvent
	OrderID         uuid.UUID `json:"order_id"`
	OrderNumberNorm string    `json:"order_number_norm"`
}

// NewOrderMatchedEvent creates a new OrderMatchedEvent
func NewOrderMatchedEvent(order *Order) *OrderMatchedEvent {
	return &OrderMatchedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderMatched, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		OrderNumberNorm: order.OrderNumberNorm,
	}
}

// OrderCancelledEvent is published when an order is withdrawn from matching
type OrderCancelledEvent struct {
	shared.BaseDomainEvent
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason,omitempty"`
}

// NewOrderCancelledEvent creates a new OrderCancelledEvent
func NewOrderCancelledEvent(order *Order) *OrderCancelledEvent {
	return &OrderCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderCancelled, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		Reason:          order.CancelReason,
	}
}
