package fulfillment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
)

// =============================================================================
// Order DTOs
// =============================================================================

// CreateOrderRequest represents a commercial order arriving from one of the
// ingestion channels. The customer fields are the identity observation the
// order was placed under; name is required, the rest corroborate resolution.
type CreateOrderRequest struct {
	OrderNumber         string     `json:"order_number" binding:"required,min=1,max=50"`
	OrderDate           time.Time  `json:"order_date" binding:"required"`
	ShipDate            *time.Time `json:"ship_date"`
	CustomerName        string     `json:"customer_name" binding:"required,min=1,max=200"`
	CustomerAddressLine string     `json:"customer_address_line" binding:"max=500"`
	CustomerCity        string     `json:"customer_city" binding:"max=100"`
	CustomerState       string     `json:"customer_state" binding:"max=100"`
	CustomerPostalCode  string     `json:"customer_postal_code" binding:"max=20"`
	CustomerEmail       string     `json:"customer_email" binding:"omitempty,email,max=200"`
	CustomerPhone       string     `json:"customer_phone" binding:"max=50"`
	Source              string     `json:"source" binding:"required,oneof=feed document manual"`
	ExternalKey         string     `json:"external_key" binding:"required,min=1,max=100"`
}

// ToCandidate converts the customer fields into an identity candidate
func (r CreateOrderRequest) ToCandidate() identity.Candidate {
	return identity.Candidate{
		Name:        r.CustomerName,
		AddressLine: r.CustomerAddressLine,
		City:        r.CustomerCity,
		State:       r.CustomerState,
		PostalCode:  r.CustomerPostalCode,
		Email:       r.CustomerEmail,
		Phone:       r.CustomerPhone,
		Source:      identity.Source(r.Source),
	}
}

// CancelOrderRequest carries the reason an order is withdrawn
type CancelOrderRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

// OrderResponse represents an order in API responses
type OrderResponse struct {
	ID                  uuid.UUID  `json:"id"`
	OrderNumber         string     `json:"order_number"`
	OrderNumberNorm     string     `json:"order_number_norm"`
	OrderDate           time.Time  `json:"order_date"`
	ShipDate            *time.Time `json:"ship_date,omitempty"`
	CanonicalIdentityID uuid.UUID  `json:"canonical_identity_id"`
	Source              string     `json:"source"`
	ExternalKey         string     `json:"external_key"`
	Status              string     `json:"status"`
	CancelReason        string     `json:"cancel_reason,omitempty"`
	MatchedAt           *time.Time `json:"matched_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Version             int        `json:"version"`
}

// ToOrderResponse converts a domain order to its response representation
func ToOrderResponse(o *fulfillment.Order) OrderResponse {
	return OrderResponse{
		ID:                  o.ID,
		OrderNumber:         o.OrderNumber,
		OrderNumberNorm:     o.OrderNumberNorm,
		OrderDate:           o.OrderDate,
		ShipDate:            o.ShipDate,
		CanonicalIdentityID: o.CanonicalIdentityID,
		Source:              string(o.Source),
		ExternalKey:         o.ExternalKey,
		Status:              string(o.Status),
		CancelReason:        o.CancelReason,
		MatchedAt:           o.MatchedAt,
		CancelledAt:         o.CancelledAt,
		CreatedAt:           o.CreatedAt,
		UpdatedAt:           o.UpdatedAt,
		Version:             o.Version,
	}
}

// OrderIngestResponse summarizes one ingested order
type OrderIngestResponse struct {
	Order OrderResponse `json:"order"`

	// Created is false when the (source, external_key) pair was already
	// stored and the existing order is returned unchanged.
	Created bool `json:"created"`

	// ResolutionTier records how the customer observation resolved
	ResolutionTier string `json:"resolution_tier,omitempty"`

	// MatchedDistributions counts distribution records linked during ingest
	MatchedDistributions int `json:"matched_distributions"`
}

// OrderListResponse represents a paginated order listing
type OrderListResponse struct {
	Items      []OrderResponse `json:"items"`
	TotalCount int64           `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}

// =============================================================================
// Distribution DTOs
// =============================================================================

// CreateDistributionRequest represents a raw fulfillment line. The order
// number and ship-to address are optional; without them the record can only
// be matched through the remaining signals.
type CreateDistributionRequest struct {
	OrderNumber string          `json:"order_number" binding:"max=50"`
	SKU         string          `json:"sku" binding:"required,min=1,max=50"`
	Quantity    decimal.Decimal `json:"quantity" binding:"required"`
	LotRaw      string          `json:"lot_raw" binding:"max=100"`
	ShipDate    *time.Time      `json:"ship_date"`
	Source      string          `json:"source" binding:"required,oneof=feed document manual"`
	ExternalKey string          `json:"external_key" binding:"required,min=1,max=100"`
	ShipToCity  string          `json:"ship_to_city" binding:"max=100"`
	ShipToState string          `json:"ship_to_state" binding:"max=100"`
	ShipToZip   string          `json:"ship_to_zip" binding:"max=20"`
}

// DistributionResponse represents a distribution record in API responses
type DistributionResponse struct {
	ID                  uuid.UUID       `json:"id"`
	OrderNumberRaw      string          `json:"order_number_raw,omitempty"`
	OrderNumberNorm     string          `json:"order_number_norm,omitempty"`
	SKU                 string          `json:"sku"`
	Quantity            decimal.Decimal `json:"quantity"`
	LotRaw              string          `json:"lot_raw,omitempty"`
	LotCanonical        string          `json:"lot_canonical,omitempty"`
	ShipDate            *time.Time      `json:"ship_date,omitempty"`
	Source              string          `json:"source"`
	ExternalKey         string          `json:"external_key"`
	ShipToCity          string          `json:"ship_to_city,omitempty"`
	ShipToState         string          `json:"ship_to_state,omitempty"`
	ShipToPostalCode    string          `json:"ship_to_postal_code,omitempty"`
	MatchedOrderID      *uuid.UUID      `json:"matched_order_id,omitempty"`
	CanonicalIdentityID *uuid.UUID      `json:"canonical_identity_id,omitempty"`
	IdentityDisplayName string          `json:"identity_display_name,omitempty"`
	MatchedAt           *time.Time      `json:"matched_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	Version             int             `json:"version"`
}

// ToDistributionResponse converts a domain record to its response representation
func ToDistributionResponse(d *fulfillment.DistributionRecord) DistributionResponse {
	return DistributionResponse{
		ID:                  d.ID,
		OrderNumberRaw:      d.OrderNumberRaw,
		OrderNumberNorm:     d.OrderNumberNorm,
		SKU:                 d.SKU,
		Quantity:            d.Quantity,
		LotRaw:              d.LotRaw,
		LotCanonical:        d.LotCanonical,
		ShipDate:            d.ShipDate,
		Source:              string(d.Source),
		ExternalKey:         d.ExternalKey,
		ShipToCity:          d.ShipToCity,
		ShipToState:         d.ShipToState,
		ShipToPostalCode:    d.ShipToPostalCode,
		MatchedOrderID:      d.MatchedOrderID,
		CanonicalIdentityID: d.CanonicalIdentityID,
		IdentityDisplayName: d.IdentityDisplayName,
		MatchedAt:           d.MatchedAt,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
		Version:             d.Version,
	}
}

// DistributionIngestResponse summarizes one ingested fulfillment line
type DistributionIngestResponse struct {
	Distribution DistributionResponse `json:"distribution"`

	// Created is false when the (source, external_key) pair was already
	// stored and the existing record is returned unchanged.
	Created bool `json:"created"`

	// MatchedOrderID is set when ingest linked the record to an order
	MatchedOrderID *uuid.UUID `json:"matched_order_id,omitempty"`
}

// DistributionListResponse represents a paginated distribution listing
type DistributionListResponse struct {
	Items      []DistributionResponse `json:"items"`
	TotalCount int64                  `json:"total_count"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
}
