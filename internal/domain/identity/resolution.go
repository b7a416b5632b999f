package identity

// MatchTier grades the confidence of an identity resolution. Tiers are
// evaluated in order; the first hit wins.
type MatchTier string

const (
	TierExact  MatchTier = "exact"  // Canonical key equality, auto-linked
	TierStrong MatchTier = "strong" // Key-prefix agreement corroborated by address or email domain, auto-linked
	TierWeak   MatchTier = "weak"   // Similarity only; queued for review, never auto-linked
	TierNone   MatchTier = "none"   // No existing identity matched
)

// String returns the string representation of MatchTier
func (t MatchTier) String() string {
	return string(t)
}

// AutoLinks returns true when the tier links the candidate to an existing
// identity without human review
func (t MatchTier) AutoLinks() bool {
	return t == TierExact || t == TierStrong
}
