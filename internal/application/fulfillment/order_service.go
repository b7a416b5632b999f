package fulfillment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appidentity "github.com/reconcile/backend/internal/application/identity"
	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// IdentityResolver resolves identity observations to canonical identities
type IdentityResolver interface {
	// Resolve maps a candidate observation to its canonical identity,
	// creating one when no tier matches
	Resolve(ctx context.Context, candidate identity.Candidate) (*appidentity.ResolveResult, error)
}

// OrderMatcher links a just-ingested order to waiting distribution records
type OrderMatcher interface {
	MatchNewOrder(ctx context.Context, order *fulfillment.Order) (int, error)
}

// OrderService ingests commercial orders. Each order resolves its customer
// observation to a canonical identity, then immediately tries to link any
// waiting distribution records.
type OrderService struct {
	orderRepo      fulfillment.OrderRepository
	resolver       IdentityResolver
	matcher        OrderMatcher
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	orderRepo fulfillment.OrderRepository,
	resolver IdentityResolver,
	matcher OrderMatcher,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orderRepo:      orderRepo,
		resolver:       resolver,
		matcher:        matcher,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Ingest stores one order. Re-delivering the same (source, external_key)
// pair returns the stored order unchanged. A failure to link distributions
// does not fail the ingest; matching re-runs on the distribution side.
func (s *OrderService) Ingest(ctx context.Context, req CreateOrderRequest) (*OrderIngestResponse, error) {
	source := identity.Source(req.Source)

	existing, err := s.orderRepo.FindBySourceKey(ctx, source, req.ExternalKey)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return &OrderIngestResponse{Order: ToOrderResponse(existing)}, nil
	}

	resolution, err := s.resolver.Resolve(ctx, req.ToCandidate())
	if err != nil {
		return nil, err
	}

	order, err := fulfillment.NewOrder(req.OrderNumber, req.OrderDate, req.ShipDate,
		resolution.Identity.ID, source, req.ExternalKey)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.Insert(ctx, order); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Concurrent re-delivery won the insert; adopt the stored row
			winner, qerr := s.orderRepo.FindBySourceKey(ctx, source, req.ExternalKey)
			if qerr != nil {
				return nil, qerr
			}
			return &OrderIngestResponse{Order: ToOrderResponse(winner)}, nil
		}
		return nil, err
	}
	s.publishDomainEvents(ctx, order)

	matched, err := s.matcher.MatchNewOrder(ctx, order)
	if err != nil {
		s.logger.Warn("order stored but matching failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("order ingested",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("source", string(order.Source)),
		zap.String("resolution_tier", resolution.Tier.String()),
		zap.Int("matched_distributions", matched))

	return &OrderIngestResponse{
		Order:                ToOrderResponse(order),
		Created:              true,
		ResolutionTier:       resolution.Tier.String(),
		MatchedDistributions: matched,
	}, nil
}

// Cancel withdraws an open order from matching
func (s *OrderService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*OrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := order.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.orderRepo.Save(ctx, order); err != nil {
		return nil, err
	}
	s.publishDomainEvents(ctx, order)

	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("reason", order.CancelReason))

	resp := ToOrderResponse(order)
	return &resp, nil
}

// GetByID retrieves an order by ID
func (s *OrderService) GetByID(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToOrderResponse(order)
	return &resp, nil
}

// List retrieves orders matching the filter
func (s *OrderService) List(ctx context.Context, filter shared.Filter) (*OrderListResponse, error) {
	orders, err := s.orderRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.orderRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return newOrderListResponse(orders, total, filter), nil
}

// ListByIdentity retrieves orders linked to a canonical identity
func (s *OrderService) ListByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) (*OrderListResponse, error) {
	orders, err := s.orderRepo.FindByIdentity(ctx, identityID, filter)
	if err != nil {
		return nil, err
	}
	return newOrderListResponse(orders, int64(len(orders)), filter), nil
}

func newOrderListResponse(orders []fulfillment.Order, total int64, filter shared.Filter) *OrderListResponse {
	items := make([]OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, ToOrderResponse(&orders[i]))
	}
	return &OrderListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *OrderService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := root.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events", zap.Error(err))
	}
	root.ClearDomainEvents()
}
