package fulfillment

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// OrderStatus represents the reconciliation state of a commercial order
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"      // Awaiting fulfillment lines
	OrderStatusMatched   OrderStatus = "matched"   // At least one distribution links here
	OrderStatusCancelled OrderStatus = "cancelled" // Withdrawn; excluded from matching
)

// IsValid checks if the status is a valid OrderStatus
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusOpen, OrderStatusMatched, OrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// Order is the commercial-side record of a customer order. It is created by
// an ingestion path and reconciled lazily against distribution records.
//
// (Source, ExternalKey) is unique so automated feeds can re-deliver the same
// order without creating duplicates.
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber         string          `gorm:"type:varchar(50);not null"`
	OrderNumberNorm     string          `gorm:"type:varchar(50);not null;index"`
	OrderDate           time.Time       `gorm:"not null"`
	ShipDate            *time.Time      `gorm:"index"`
	CanonicalIdentityID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Source              identity.Source `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_source_key,priority:1"`
	ExternalKey         string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_order_source_key,priority:2"`
	Status              OrderStatus     `gorm:"type:varchar(20);not null;default:'open';index"`
	CancelReason        string          `gorm:"type:varchar(200)"`
	MatchedAt           *time.Time
	CancelledAt         *time.Time
}

// TableName returns the table name for GORM
func (Order) TableName() string {
	return "orders"
}

// NewOrder creates a new order linked to a resolved canonical identity
func NewOrder(orderNumber string, orderDate time.Time, shipDate *time.Time, identityID uuid.UUID, source identity.Source, externalKey string) (*Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot be empty")
	}
	if len(orderNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number cannot exceed 50 characters")
	}
	norm := NormalizeOrderNumber(orderNumber)
	if norm == "" {
		return nil, shared.NewDomainError("INVALID_ORDER_NUMBER", "Order number does not normalize to a usable value")
	}
	if orderDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_ORDER_DATE", "Order date cannot be empty")
	}
	if identityID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_IDENTITY", "Order requires a resolved canonical identity")
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_SOURCE", "Source must be 'feed', 'document', or 'manual'")
	}
	externalKey = strings.TrimSpace(externalKey)
	if externalKey == "" {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_KEY", "External key cannot be empty")
	}
	if len(externalKey) > 100 {
		return nil, shared.NewDomainError("INVALID_EXTERNAL_KEY", "External key cannot exceed 100 characters")
	}

	order := &Order{
		BaseAggregateRoot:   shared.NewBaseAggregateRoot(),
		OrderNumber:         orderNumber,
		OrderNumberNorm:     norm,
		OrderDate:           orderDate,
		ShipDate:            shipDate,
		CanonicalIdentityID: identityID,
		Source:              source,
		ExternalKey:         externalKey,
		Status:              OrderStatusOpen,
	}

	order.AddDomainEvent(NewOrderCreatedEvent(order))

	return order, nil
}

// MarkMatched records that at least one distribution now links to this
// order. Calling it on an already-matched order is a no-op.
func (o *Order) MarkMatched() {
	if o.Status == OrderStatusMatched {
		return
	}

	now := time.Now()
	o.Status = OrderStatusMatched
	o.MatchedAt = &now
	o.UpdatedAt = now
	o.IncrementVersion()

	o.AddDomainEvent(NewOrderMatchedEvent(o))
}

// Cancel withdraws the order from matching. Matched orders cannot be
// cancelled; their distributions already reference them.
func (o *Order) Cancel(reason string) error {
	if o.Status == OrderStatusCancelled {
		return shared.NewDomainError("INVALID_STATE", "Order is already cancelled")
	}
	if o.Status == OrderStatusMatched {
		return shared.NewDomainError("INVALID_STATE", "Matched orders cannot be cancelled")
	}

	now := time.Now()
	o.Status = OrderStatusCancelled
	o.CancelReason = strings.TrimSpace(reason)
	o.CancelledAt = &now
	o.UpdatedAt = now
	o.IncrementVersion()

	o.AddDomainEvent(NewOrderCancelledEvent(o))

	return nil
}

// IsMatchable returns true when the matcher may link distributions here
func (o *Order) IsMatchable() bool {
	return o.Status != OrderStatusCancelled
}
