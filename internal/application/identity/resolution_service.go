package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/reconcile/backend/internal/domain/identity"
	"github.com/reconcile/backend/internal/domain/shared"
)

// Resolution scan defaults. Both are tunable because the right similarity
// width varies with the corpus; these values held up against feed data.
const (
	DefaultWeakPrefixLen    = 8
	DefaultVariantScanLimit = 200
)

// ResolutionConfig tunes the variant scan behind the strong and weak tiers
type ResolutionConfig struct {
	// WeakPrefixLen is the canonical-key prefix length used to gather
	// name variants. Keys shorter than this must match in full.
	WeakPrefixLen int

	// VariantScanLimit caps how many stored identities one resolution
	// will compare against.
	VariantScanLimit int
}

// withDefaults replaces zero values with the package defaults
func (c ResolutionConfig) withDefaults() ResolutionConfig {
	if c.WeakPrefixLen <= 0 {
		c.WeakPrefixLen = DefaultWeakPrefixLen
	}
	if c.VariantScanLimit <= 0 {
		c.VariantScanLimit = DefaultVariantScanLimit
	}
	return c
}

// ResolveResult describes how a candidate was resolved
type ResolveResult struct {
	// Identity is the canonical identity the candidate resolved to. On a
	// weak or no-tier outcome this is a freshly created identity.
	Identity *identity.CanonicalIdentity

	// Tier records which matching tier produced the identity
	Tier identity.MatchTier

	// Created is true when resolution created a new identity row
	Created bool

	// FilledFields lists identity fields inherited from the candidate
	FilledFields []string

	// QueuedCandidates holds the IDs of merge candidates enqueued for
	// weak-tier similars. Empty unless Tier is weak.
	QueuedCandidates []uuid.UUID
}

// ResolutionService deduplicates identity observations across channels.
// Exact and strong tiers link to an existing identity and fill its blank
// fields; the weak tier creates a new identity and queues the similar pair
// for human review instead of guessing.
type ResolutionService struct {
	identityRepo   identity.CanonicalIdentityRepository
	mergeRepo      identity.MergeCandidateRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
	cfg            ResolutionConfig
}

// NewResolutionService creates a new resolution service
func NewResolutionService(
	identityRepo identity.CanonicalIdentityRepository,
	mergeRepo identity.MergeCandidateRepository,
	eventPublisher shared.EventPublisher,
	logger *zap.Logger,
	cfg ResolutionConfig,
) *ResolutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResolutionService{
		identityRepo:   identityRepo,
		mergeRepo:      mergeRepo,
		eventPublisher: eventPublisher,
		logger:         logger,
		cfg:            cfg.withDefaults(),
	}
}

// Resolve maps a candidate observation to its canonical identity, creating
// one when no tier matches. Resolving the same candidate twice returns the
// same identity.
func (s *ResolutionService) Resolve(ctx context.Context, candidate identity.Candidate) (*ResolveResult, error) {
	res, err := s.resolve(ctx, candidate)
	if err != nil {
		return nil, err
	}
	s.publishResolved(ctx, res)
	return res, nil
}

// resolve walks the tiers. The caller reports the outcome.
func (s *ResolutionService) resolve(ctx context.Context, candidate identity.Candidate) (*ResolveResult, error) {
	if err := candidate.Validate(); err != nil {
		return nil, err
	}

	key := identity.CanonicalKey(candidate.Name)
	if key == "" {
		return nil, shared.NewDomainError("INVALID_CANDIDATE", "Candidate name does not normalize to a usable key")
	}

	// Tier 1: exact canonical-key equality
	existing, err := s.identityRepo.FindByCanonicalKey(ctx, key)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return s.adopt(ctx, existing, candidate, identity.TierExact)
	}

	// Tiers 2 and 3 share one bounded scan over key-prefix variants
	prefix := identity.KeyPrefix(key, s.cfg.WeakPrefixLen)
	variants, err := s.identityRepo.FindByKeyPrefix(ctx, prefix, s.cfg.VariantScanLimit)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	strong, weak := s.classifyVariants(key, candidate, variants)

	if len(strong) == 1 {
		return s.adopt(ctx, &strong[0], candidate, identity.TierStrong)
	}
	if len(strong) > 1 {
		// Two identities both corroborate: linking to either could mix
		// entities irreversibly, so all of them go to the review queue.
		s.logger.Warn("ambiguous strong match, queueing for review",
			zap.String("canonical_key", key),
			zap.Int("strong_matches", len(strong)))
		weak = append(weak, strong...)
	}

	ident, adopted, err := s.createIdentity(ctx, key, candidate)
	if err != nil {
		return nil, err
	}
	if adopted != nil {
		// Lost the first-sighting race; the winner is the canonical row
		return adopted, nil
	}

	queued := s.enqueueWeak(ctx, ident, weak)

	// Weak similars grade the outcome even when their pairs were already
	// queued by an earlier resolution.
	tier := identity.TierNone
	if len(weak) > 0 {
		tier = identity.TierWeak
	}

	s.logger.Info("identity created",
		zap.String("identity_id", ident.ID.String()),
		zap.String("canonical_key", key),
		zap.String("tier", tier.String()),
		zap.Int("queued_candidates", len(queued)))

	return &ResolveResult{
		Identity:         ident,
		Tier:             tier,
		Created:          true,
		QueuedCandidates: queued,
	}, nil
}

// GetByID retrieves a canonical identity by ID
func (s *ResolutionService) GetByID(ctx context.Context, id uuid.UUID) (*IdentityResponse, error) {
	ident, err := s.identityRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := ToIdentityResponse(ident)
	return &resp, nil
}

// List retrieves identities matching the filter
func (s *ResolutionService) List(ctx context.Context, filter shared.Filter) (*IdentityListResponse, error) {
	identities, err := s.identityRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.identityRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]IdentityResponse, 0, len(identities))
	for i := range identities {
		items = append(items, ToIdentityResponse(&identities[i]))
	}

	return &IdentityListResponse{
		Items:      items,
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}

// adopt links the candidate to an existing identity, inheriting any fields
// the identity was missing. Populated fields are never overwritten.
func (s *ResolutionService) adopt(ctx context.Context, ident *identity.CanonicalIdentity, candidate identity.Candidate, tier identity.MatchTier) (*ResolveResult, error) {
	filled := ident.InheritFields(candidate)
	if len(filled) > 0 {
		if err := s.identityRepo.Save(ctx, ident); err != nil {
			return nil, err
		}
		s.publishDomainEvents(ctx, ident)
	}

	return &ResolveResult{
		Identity:     ident,
		Tier:         tier,
		FilledFields: filled,
	}, nil
}

// classifyVariants splits prefix variants into strong matches (address or
// email-domain corroboration) and weak ones (same state only). The exact-key
// row is handled by tier 1 and skipped here.
func (s *ResolutionService) classifyVariants(key string, candidate identity.Candidate, variants []identity.CanonicalIdentity) (strong, weak []identity.CanonicalIdentity) {
	emailDomain := identity.EmailDomain(candidate.Email)

	for _, v := range variants {
		if v.CanonicalKey == key {
			continue
		}

		if identity.SameAddress(
			candidate.City, candidate.State, candidate.PostalCode,
			v.City, v.State, v.PostalCode,
		) {
			strong = append(strong, v)
			continue
		}
		if emailDomain != "" && v.HasEmail() && identity.EmailDomain(v.Email) == emailDomain {
			strong = append(strong, v)
			continue
		}
		if identity.SameState(candidate.State, v.State) {
			weak = append(weak, v)
		}
	}

	return strong, weak
}

// createIdentity inserts a new identity for the candidate. When a concurrent
// first-sighting wins the unique-key race, the stored winner is re-queried
// and adopted instead of surfacing the conflict.
func (s *ResolutionService) createIdentity(ctx context.Context, key string, candidate identity.Candidate) (*identity.CanonicalIdentity, *ResolveResult, error) {
	ident, err := identity.NewCanonicalIdentity(key, candidate)
	if err != nil {
		return nil, nil, err
	}

	err = s.identityRepo.Insert(ctx, ident)
	if err == nil {
		s.publishDomainEvents(ctx, ident)
		return ident, nil, nil
	}
	if !errors.Is(err, shared.ErrAlreadyExists) {
		return nil, nil, err
	}

	winner, qerr := s.identityRepo.FindByCanonicalKey(ctx, key)
	if qerr != nil {
		return nil, nil, shared.NewDomainError("CONFLICT", "Identity creation raced and the winner could not be loaded")
	}

	s.logger.Debug("identity insert raced, adopting winner",
		zap.String("canonical_key", key),
		zap.String("identity_id", winner.ID.String()))

	adopted, aerr := s.adopt(ctx, winner, candidate, identity.TierExact)
	if aerr != nil {
		return nil, nil, aerr
	}
	return nil, adopted, nil
}

// enqueueWeak queues one merge candidate per weak similar. A pair already
// queued is left alone; enqueue failures are logged, never fatal.
func (s *ResolutionService) enqueueWeak(ctx context.Context, ident *identity.CanonicalIdentity, similars []identity.CanonicalIdentity) []uuid.UUID {
	if len(similars) == 0 {
		return nil
	}

	queued := make([]uuid.UUID, 0, len(similars))
	for _, sim := range similars {
		mc, err := identity.NewMergeCandidate(ident.ID, sim.ID, identity.ConfidenceWeak,
			"Similar canonical key in the same state: "+sim.CanonicalKey)
		if err != nil {
			s.logger.Warn("failed to build merge candidate",
				zap.String("identity_a", ident.ID.String()),
				zap.String("identity_b", sim.ID.String()),
				zap.Error(err))
			continue
		}

		if err := s.mergeRepo.Insert(ctx, mc); err != nil {
			if errors.Is(err, shared.ErrAlreadyExists) {
				continue
			}
			s.logger.Warn("failed to enqueue merge candidate",
				zap.String("identity_a", mc.IdentityA.String()),
				zap.String("identity_b", mc.IdentityB.String()),
				zap.Error(err))
			continue
		}

		s.publishDomainEvents(ctx, mc)
		queued = append(queued, mc.ID)
	}

	return queued
}

// publishResolved reports the tier that linked the candidate. The event is
// observational; failures are logged, not propagated.
func (s *ResolutionService) publishResolved(ctx context.Context, res *ResolveResult) {
	if s.eventPublisher == nil {
		return
	}
	evt := identity.NewIdentityResolvedEvent(res.Identity, res.Tier, res.Created)
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("failed to publish resolution event",
			zap.String("identity_id", res.Identity.ID.String()),
			zap.Error(err))
	}
}

// publishDomainEvents publishes pending aggregate events and clears them.
// Publish failures are logged, not propagated.
func (s *ResolutionService) publishDomainEvents(ctx context.Context, root shared.AggregateRoot) {
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
