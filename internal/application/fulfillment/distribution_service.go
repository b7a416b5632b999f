package fulfillment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/fulfillment"
	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/lot"
	"github.com/reconcile/backend/internal/domain/shared"
)

// LotCanonicalizer maps raw lot labels to their canonical form using the
// current reference snapshot
type LotCanonicalizer interface {
	// Canonicalize normalizes a raw lot label and applies the correction
	// map and reference lookup
	Canonicalize(ctx context.Context, raw string) (lot.Info, error)
}

// DistributionMatcher links a just-ingested fulfillment line to its
// commercial order
type DistributionMatcher interface {
	MatchNewDistribution(ctx context.Context, rec *fulfillment.DistributionRecord) (*uuid.UUID, error)
}

// DistributionService ingests raw fulfillment lines. Each line gets its lot
// label canonicalized at ingest time, then immediately tries to find its
// commercial order.
type DistributionService struct {
	distRepo       fulfillment.DistributionRecordRepository
	lots           LotCanonicalizer
	matcher        DistributionMatcher
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewDistributionService creates a new distribution service
func NewDistributionService(
	distRepo fulfillment.DistributionRecordRepository,
	lots LotCanonicalizer,
	matcher DistributionMatcher,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *DistributionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributionService{
		distRepo:       distRepo,
		lots:           lots,
		matcher:        matcher,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Ingest stores one fulfillment line. Re-delivering the same (source,
// external_key) pair returns the stored record unchanged. A matching
// failure does not fail the ingest; the record stays queued and matching
// re-runs when its order arrives.
func (s *DistributionService) Ingest(ctx context.Context, req CreateDistributionRequest) (*DistributionIngestResponse, error) {
	source := identity.Source(req.Source)

	existing, err := s.distRepo.FindBySourceKey(ctx, source, req.ExternalKey)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return &DistributionIngestResponse{
			Distribution:   ToDistributionResponse(existing),
			MatchedOrderID: existing.MatchedOrderID,
		}, nil
	}

	lotCanonical := ""
	if req.LotRaw != "" && s.lots != nil {
		info, err := s.lots.Canonicalize(ctx, req.LotRaw)
		if err != nil {
			return nil, err
		}
		lotCanonical = info.Canonical
	}

	rec, err := fulfillment.NewDistributionRecord(fulfillment.NewDistributionInput{
		OrderNumber:  req.OrderNumber,
		SKU:          req.SKU,
		Quantity:     req.Quantity,
		LotRaw:       req.LotRaw,
		LotCanonical: lotCanonical,
		ShipDate:     req.ShipDate,
		Source:       source,
		ExternalKey:  req.ExternalKey,
		ShipToCity:   req.ShipToCity,
		ShipToState:  req.ShipToState,
		ShipToZip:    req.ShipToZip,
	})
	if err != nil {
		return nil, err
	}

	if err := s.distRepo.Insert(ctx, rec); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Concurrent re-delivery won the insert; adopt the stored row
			winner, qerr := s.distRepo.FindBySourceKey(ctx, source, req.ExternalKey)
			if qerr != nil {
				return nil, qerr
			}
			return &DistributionIngestResponse{
				Distribution:   ToDistributionResponse(winner),
				MatchedOrderID: winner.MatchedOrderID,
			}, nil
		}
		return nil, err
	}
	s.publishDomainEvents(ctx, rec)

	matchedOrderID, err := s.matcher.MatchNewDistribution(ctx, rec)
	if err != nil {
		s.logger.Warn("distribution stored but matching failed",
			zap.String("distribution_id", rec.ID.String()),
			zap.Error(err))
	}

	s.logger.Info("distribution ingested",
		zap.String("distribution_id", rec.ID.String()),
		zap.String("sku", rec.SKU),
		zap.String("source", string(rec.Source)),
		zap.Bool("matched", matchedOrderID != nil))

	return &DistributionIngestResponse{
		Distribution:   ToDistributionResponse(rec),
		Created:        true,
		MatchedOrderID: matchedOrderID,
	}, nil
}

// GetByID retrieves a distribution record by ID
func (s *DistributionService) GetByID(ctx context.Context, id uuid.UUID) (*DistributionResponse, error) {
	rec, err := s.distRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToDistributionResponse(rec)
	return &resp, nil
}

// List retrieves distribution records matching the filter
func (s *DistributionService) List(ctx context.Context, filter shared.Filter) (*DistributionListResponse, error) {
	records, err := s.distRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.distRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return newDistributionListResponse(records, total, filter), nil
}

// ListUnmatched retrieves the review queue of records no order has claimed,
// oldest first
func (s *DistributionService) ListUnmatched(ctx context.Context, limit int) (*DistributionListResponse, error) {
	if limit <= 0 {
		limit = DefaultFallbackScanLimit
	}
	records, err := s.distRepo.FindUnmatched(ctx, limit)
	if err != nil {
		return nil, err
	}
	total, err := s.distRepo.CountUnmatched(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]DistributionResponse, 0, len(records))
	for i := range records {
		items = append(items, ToDistributionResponse(&records[i]))
	}
	return &DistributionListResponse{
		Items:      items,
		TotalCount: total,
		Page:       1,
		PageSize:   limit,
	}, nil
}

// ListByOrder retrieves records matched to an order
func (s *DistributionService) ListByOrder(ctx context.Context, orderID uuid.UUID) (*DistributionListResponse, error) {
	records, err := s.distRepo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return newDistributionListResponse(records, int64(len(records)), shared.DefaultFilter()), nil
}

// ListByIdentity retrieves records linked to a canonical identity
func (s *DistributionService) ListByIdentity(ctx context.Context, identityID uuid.UUID, filter shared.Filter) (*DistributionListResponse, error) {
	records, err := s.distRepo.FindByIdentity(ctx, identityID, filter)
	if err != nil {
		return nil, err
	}
	return newDistributionListResponse(records, int64(len(records)), filter), nil
}

func newDistributionListResponse(records []fulfillment.DistributionRecord, total int64, filter shared.Filter) *DistributionListResponse {
	items := make([]DistributionResponse, 0, len(records))
	for i := range records {
		items = append(items, ToDistributionResponse(&records[i]))
	}
	return &DistributionListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *DistributionService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
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
