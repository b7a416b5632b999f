package fulfillment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// DefaultFallbackScanLimit bounds the address-fallback scan over unmatched
// records and open orders.
const DefaultFallbackScanLimit = 500

// MatcherConfig tunes the order-distribution matcher
type MatcherConfig struct {
	// FallbackScanLimit caps how many rows one address-fallback pass reads
	FallbackScanLimit int
}

// withDefaults replaces zero values with the package defaults
func (c MatcherConfig) withDefaults() MatcherConfig {
	if c.FallbackScanLimit <= 0 {
		c.FallbackScanLimit = DefaultFallbackScanLimit
	}
	return c
}

// MatcherService reconciles orders and distribution records lazily in both
// directions. Matching by normalized order number is tried first; records
// without a usable number fall back to comparing the recorded ship-to
// address against the order identity's address.
//
// Every link is written through a guarded update that re-checks the record
// is still unmatched, so concurrent matchers converge instead of
// double-writing. Measurement fields are never touched.
type MatcherService struct {
	orderRepo      fulfillment.OrderRepository
	distRepo       fulfillment.DistributionRecordRepository
	identityRepo   identity.CanonicalIdentityRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	cfg            MatcherConfig
}

// NewMatcherService creates a new matcher service
func NewMatcherService(
	orderRepo fulfillment.OrderRepository,
	distRepo fulfillment.DistributionRecordRepository,
	identityRepo identity.CanonicalIdentityRepository,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
	cfg MatcherConfig,
) *MatcherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatcherService{
		orderRepo:      orderRepo,
		distRepo:       distRepo,
		identityRepo:   identityRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
		cfg:            cfg.withDefaults(),
	}
}

// MatchNewOrder links unmatched distribution records to a just-ingested
// order and returns how many were linked. Cancelled orders match nothing.
func (s *MatcherService) MatchNewOrder(ctx context.Context, order *fulfillment.Order) (int, error) {
	if !order.IsMatchable() {
		return 0, nil
	}

	ident, err := s.identityRepo.FindByID(ctx, order.CanonicalIdentityID)
	if err != nil {
		return 0, err
	}

	candidates, err := s.distRepo.FindUnmatchedByNumber(ctx, order.OrderNumberNorm)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		candidates, err = s.fallbackDistributionsByAddress(ctx, ident)
		if err != nil {
			return 0, err
		}
	}

	matched := 0
	for i := range candidates {
		rec := &candidates[i]
		if rec.IsMatched() {
			continue
		}
		if err := rec.Match(order.ID, ident.ID, ident.DisplayName); err != nil {
			return matched, err
		}
		if err := s.distRepo.SaveMatch(ctx, rec); err != nil {
			if errors.Is(err, shared.ErrConcurrencyConflict) {
				s.logger.Debug("distribution matched concurrently, skipping",
					zap.String("distribution_id", rec.ID.String()))
				continue
			}
			return matched, err
		}
		s.publishDomainEvents(ctx, rec)
		matched++
	}

	if matched > 0 {
		order.MarkMatched()
		if err := s.orderRepo.Save(ctx, order); err != nil {
			return matched, err
		}
		s.publishDomainEvents(ctx, order)

		s.logger.Info("order matched distributions",
			zap.String("order_id", order.ID.String()),
			zap.String("order_number_norm", order.OrderNumberNorm),
			zap.Int("matched", matched))
	}

	return matched, nil
}

// MatchNewDistribution links a just-ingested distribution record to an
// existing order and returns the matched order ID, or nil when no single
// order qualifies. Already-matched records are a no-op.
func (s *MatcherService) MatchNewDistribution(ctx context.Context, rec *fulfillment.DistributionRecord) (*uuid.UUID, error) {
	if rec.IsMatched() {
		return rec.MatchedOrderID, nil
	}

	var target *fulfillment.Order
	if rec.OrderNumberNorm != "" {
		orders, err := s.orderRepo.FindMatchableByNumber(ctx, rec.OrderNumberNorm)
		if err != nil {
			return nil, err
		}
		switch len(orders) {
		case 0:
			// fall through to the address tier
		case 1:
			target = &orders[0]
		default:
			// Several orders share the normalized number; linking to any
			// of them is a guess. The record stays queued for review.
			s.logger.Warn("multiple orders share normalized number, leaving distribution unmatched",
				zap.String("distribution_id", rec.ID.String()),
				zap.String("order_number_norm", rec.OrderNumberNorm),
				zap.Int("orders", len(orders)))
			return nil, nil
		}
	}

	if target == nil {
		var err error
		target, err = s.fallbackOrderByAddress(ctx, rec)
		if err != nil {
			return nil, err
		}
	}
	if target == nil {
		return nil, nil
	}

	ident, err := s.identityRepo.FindByID(ctx, target.CanonicalIdentityID)
	if err != nil {
		return nil, err
	}

	if err := rec.Match(target.ID, ident.ID, ident.DisplayName); err != nil {
		return nil, err
	}
	if err := s.distRepo.SaveMatch(ctx, rec); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			// A concurrent matcher won; surface its outcome
			fresh, ferr := s.distRepo.FindByID(ctx, rec.ID)
			if ferr != nil {
				return nil, ferr
			}
			*rec = *fresh
			return fresh.MatchedOrderID, nil
		}
		return nil, err
	}
	s.publishDomainEvents(ctx, rec)

	target.MarkMatched()
	if err := s.orderRepo.Save(ctx, target); err != nil {
		return rec.MatchedOrderID, err
	}
	s.publishDomainEvents(ctx, target)

	s.logger.Info("distribution matched order",
		zap.String("distribution_id", rec.ID.String()),
		zap.String("order_id", target.ID.String()))

	return rec.MatchedOrderID, nil
}

// fallbackDistributionsByAddress finds unmatched records whose ship-to
// address equals the order identity's address. Only records without an
// order number participate: a record carrying a number is waiting for its
// own order, not for an address guess.
func (s *MatcherService) fallbackDistributionsByAddress(ctx context.Context, ident *identity.CanonicalIdentity) ([]fulfillment.DistributionRecord, error) {
	if !ident.HasAddress() {
		return nil, nil
	}

	unmatched, err := s.distRepo.FindUnmatched(ctx, s.cfg.FallbackScanLimit)
	if err != nil {
		return nil, err
	}

	var out []fulfillment.DistributionRecord
	for _, rec := range unmatched {
		if rec.OrderNumberNorm != "" || !rec.HasShipToAddress() {
			continue
		}
		if identity.SameAddress(
			rec.ShipToCity, rec.ShipToState, rec.ShipToPostalCode,
			ident.City, ident.State, ident.PostalCode,
		) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fallbackOrderByAddress finds the single open order whose identity address
// equals the record's ship-to address. More than one equally-close order is
// ambiguous and matches nothing.
func (s *MatcherService) fallbackOrderByAddress(ctx context.Context, rec *fulfillment.DistributionRecord) (*fulfillment.Order, error) {
	if !rec.HasShipToAddress() {
		return nil, nil
	}

	orders, err := s.orderRepo.FindMatchable(ctx, s.cfg.FallbackScanLimit)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(orders))
	ids := make([]uuid.UUID, 0, len(orders))
	for i := range orders {
		id := orders[i].CanonicalIdentityID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	identities, err := s.identityRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*identity.CanonicalIdentity, len(identities))
	for i := range identities {
		byID[identities[i].ID] = &identities[i]
	}

	var match *fulfillment.Order
	for i := range orders {
		ident := byID[orders[i].CanonicalIdentityID]
		if ident == nil || !ident.HasAddress() {
			continue
		}
		if !identity.SameAddress(
			rec.ShipToCity, rec.ShipToState, rec.ShipToPostalCode,
			ident.City, ident.State, ident.PostalCode,
		) {
			continue
		}
		if match != nil {
			s.logger.Warn("multiple orders match by address, leaving distribution unmatched",
				zap.String("distribution_id", rec.ID.String()))
			return nil, nil
		}
		match = &orders[i]
	}
	return match, nil
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *MatcherService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
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
