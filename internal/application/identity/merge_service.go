package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// MergeService owns the review queue for weak identity matches. Approving a
// candidate migrates every order and distribution reference to the chosen
// master, enriches the master from the duplicate's fields, and deletes the
// duplicate, all in one transaction.
type MergeService struct {
	scope          MergeTransactionScope
	identityRepo   identity.CanonicalIdentityRepository
	mergeRepo      identity.MergeCandidateRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewMergeService creates a new merge service
func NewMergeService(
	scope MergeTransactionScope,
	identityRepo identity.CanonicalIdentityRepository,
	mergeRepo identity.MergeCandidateRepository,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
) *MergeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MergeService{
		scope:          scope,
		identityRepo:   identityRepo,
		mergeRepo:      mergeRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
	}
}

// Enqueue queues an operator-flagged identity pair for review. Queueing the
// same pair twice, in either order, returns the existing candidate.
func (s *MergeService) Enqueue(ctx context.Context, req EnqueueMergeRequest) (*MergeCandidateResponse, error) {
	if _, err := s.identityRepo.FindByID(ctx, req.IdentityA); err != nil {
		return nil, err
	}
	if _, err := s.identityRepo.FindByID(ctx, req.IdentityB); err != nil {
		return nil, err
	}

	existing, err := s.mergeRepo.FindByPair(ctx, req.IdentityA, req.IdentityB)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		resp := ToMergeCandidateResponse(existing)
		return &resp, nil
	}

	mc, err := identity.NewMergeCandidate(req.IdentityA, req.IdentityB, identity.ConfidenceManual, req.Reason)
	if err != nil {
		return nil, err
	}

	if err := s.mergeRepo.Insert(ctx, mc); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			winner, qerr := s.mergeRepo.FindByPair(ctx, req.IdentityA, req.IdentityB)
			if qerr != nil {
				return nil, qerr
			}
			resp := ToMergeCandidateResponse(winner)
			return &resp, nil
		}
		return nil, err
	}

	s.publishDomainEvents(ctx, mc)

	s.logger.Info("merge candidate enqueued",
		zap.String("candidate_id", mc.ID.String()),
		zap.String("identity_a", mc.IdentityA.String()),
		zap.String("identity_b", mc.IdentityB.String()))

	resp := ToMergeCandidateResponse(mc)
	return &resp, nil
}

// Approve executes a queued merge with the chosen identity as master.
//
// Within one transaction: orders and distribution records referencing the
// duplicate are repointed to the master, the master inherits the duplicate's
// fields into its blanks, other pending candidates involving the duplicate
// are superseded, the duplicate row is deleted and the candidate is marked
// merged. Any failure rolls the whole merge back.
func (s *MergeService) Approve(ctx context.Context, candidateID, masterID uuid.UUID) (*MergeApprovalResponse, error) {
	if masterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_MASTER", "Master identity ID is required")
	}

	var (
		result    MergeApprovalResponse
		master    *identity.CanonicalIdentity
		candidate *identity.MergeCandidate
	)

	err := s.scope.Execute(ctx, func(repos MergeRepositories) error {
		var err error

		candidate, err = repos.MergeRepo().FindByID(ctx, candidateID)
		if err != nil {
			return err
		}

		dupID, err := candidate.Other(masterID)
		if err != nil {
			return err
		}
		if err := candidate.Approve(masterID); err != nil {
			return err
		}

		master, err = repos.IdentityRepo().FindByID(ctx, masterID)
		if err != nil {
			return err
		}
		dup, err := repos.IdentityRepo().FindByID(ctx, dupID)
		if err != nil {
			return err
		}

		movedOrders, err := repos.OrderRepo().UpdateIdentityReferences(ctx, dupID, masterID)
		if err != nil {
			return err
		}
		movedDists, err := repos.DistributionRepo().UpdateIdentityReferences(ctx, dupID, masterID, master.DisplayName)
		if err != nil {
			return err
		}

		if err := master.AbsorbDuplicate(dup); err != nil {
			return err
		}
		if err := repos.IdentityRepo().Save(ctx, master); err != nil {
			return err
		}
		if err := repos.MergeRepo().Save(ctx, candidate); err != nil {
			return err
		}

		superseded, err := s.supersedePending(ctx, repos, dupID, candidate.ID)
		if err != nil {
			return err
		}

		if err := repos.IdentityRepo().Delete(ctx, dupID); err != nil {
			return err
		}

		result = MergeApprovalResponse{
			CandidateID:           candidate.ID,
			MasterID:              masterID,
			MergedID:              dupID,
			MigratedOrders:        movedOrders,
			MigratedDistributions: movedDists,
			SupersededCandidates:  superseded,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Events go out only after the transaction committed
	s.publishDomainEvents(ctx, master)
	s.publishDomainEvents(ctx, candidate)

	s.logger.Info("merge approved",
		zap.String("candidate_id", result.CandidateID.String()),
		zap.String("master_id", result.MasterID.String()),
		zap.String("merged_id", result.MergedID.String()),
		zap.Int64("migrated_orders", result.MigratedOrders),
		zap.Int64("migrated_distributions", result.MigratedDistributions),
		zap.Int("superseded_candidates", result.SupersededCandidates))

	return &result, nil
}

// supersedePending marks every other pending candidate that references the
// soon-deleted duplicate as superseded.
func (s *MergeService) supersedePending(ctx context.Context, repos MergeRepositories, dupID, approvedID uuid.UUID) (int, error) {
	pending, err := repos.MergeRepo().FindPendingByIdentity(ctx, dupID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return 0, err
	}

	superseded := 0
	for i := range pending {
		mc := &pending[i]
		if mc.ID == approvedID {
			continue
		}
		if err := mc.Supersede(); err != nil {
			return 0, err
		}
		if err := repos.MergeRepo().Save(ctx, mc); err != nil {
			return 0, err
		}
		superseded++
	}
	return superseded, nil
}

// Reject marks a queued candidate rejected. No identity data changes.
func (s *MergeService) Reject(ctx context.Context, candidateID uuid.UUID) (*MergeCandidateResponse, error) {
	candidate, err := s.mergeRepo.FindByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	if err := candidate.Reject(); err != nil {
		return nil, err
	}
	if err := s.mergeRepo.Save(ctx, candidate); err != nil {
		return nil, err
	}

	s.publishDomainEvents(ctx, candidate)

	s.logger.Info("merge candidate rejected",
		zap.String("candidate_id", candidate.ID.String()))

	resp := ToMergeCandidateResponse(candidate)
	return &resp, nil
}

// GetByID retrieves a merge candidate by ID
func (s *MergeService) GetByID(ctx context.Context, candidateID uuid.UUID) (*MergeCandidateResponse, error) {
	candidate, err := s.mergeRepo.FindByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	items := []MergeCandidateResponse{ToMergeCandidateResponse(candidate)}
	s.fillDisplayNames(ctx, items)
	return &items[0], nil
}

// ListByStatus lists merge candidates in the given review state, newest
// first, with both display names attached where the identities still exist.
func (s *MergeService) ListByStatus(ctx context.Context, status identity.MergeCandidateStatus, filter shared.Filter) (*MergeCandidateListResponse, error) {
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Status must be 'pending', 'merged', 'rejected', or 'superseded'")
	}

	candidates, err := s.mergeRepo.FindByStatus(ctx, status, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.mergeRepo.CountByStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	items := make([]MergeCandidateResponse, 0, len(candidates))
	for i := range candidates {
		items = append(items, ToMergeCandidateResponse(&candidates[i]))
	}
	s.fillDisplayNames(ctx, items)

	return &MergeCandidateListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}

// fillDisplayNames resolves identity display names for a page of candidates.
// Lookup failures leave the names blank rather than failing the listing.
func (s *MergeService) fillDisplayNames(ctx context.Context, items []MergeCandidateResponse) {
	if len(items) == 0 {
		return
	}

	idSet := make(map[uuid.UUID]struct{}, len(items)*2)
	for _, item := range items {
		idSet[item.IdentityA] = struct{}{}
		idSet[item.IdentityB] = struct{}{}
	}
	ids := make([]uuid.UUID, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	identities, err := s.identityRepo.FindByIDs(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to load identity names for merge listing", zap.Error(err))
		return
	}

	names := make(map[uuid.UUID]string, len(identities))
	for i := range identities {
		names[identities[i].ID] = identities[i].DisplayName
	}
	for i := range items {
		items[i].IdentityAName = names[items[i].IdentityA]
		items[i].IdentityBName = names[items[i].IdentityB]
	}
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *MergeService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
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
