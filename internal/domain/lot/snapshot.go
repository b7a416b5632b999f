package lot

import (
	"strings"
	"unicode"
)

// NormalizeLabel maps a raw batch label to its canonical spelling: uppercase,
// with every run of non-alphanumeric characters collapsed into a single dash.
// "slq 001", "SLQ_001" and "slq-001" all normalize to "SLQ-001".
func NormalizeLabel(raw string) string {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	var b strings.Builder
	b.Grow(len(upper))
	pendingDash := false
	for _, r := range upper {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

// Info is the result of canonicalizing one raw lot label. ManufacturingYear
// is nil when no reference row is known for the canonical label; such lots
// stay tracked for audit but drop out of year-filtered views.
type Info struct {
	Canonical         string
	ManufacturingYear *int
	SKUHint           string
}

// RefSnapshot is an immutable view of the lot reference table: the raw-label
// correction map plus reference rows keyed by canonical label. Operations
// receive one snapshot and hold it for their whole run; refreshing it is an
// out-of-band concern.
type RefSnapshot struct {
	corrections map[string]string
	refs        map[string]LotReference
}

// NewRefSnapshot copies the correction map and reference rows into a
// snapshot. Correction keys and values are normalized so lookups hit
// regardless of upstream casing; duplicate reference labels keep the last
// row.
func NewRefSnapshot(corrections map[string]string, refs []LotReference) RefSnapshot {
	s := RefSnapshot{
		corrections: make(map[string]string, len(corrections)),
		refs:        make(map[string]LotReference, len(refs)),
	}
	for from, to := range corrections {
		key := NormalizeLabel(from)
		value := NormalizeLabel(to)
		if key == "" || value == "" {
			continue
		}
		s.corrections[key] = value
	}
	for _, ref := range refs {
		canonical := NormalizeLabel(ref.LotCanonical)
		if canonical == "" {
			continue
		}
		ref.LotCanonical = canonical
		s.refs[canonical] = ref
	}
	return s
}

// Canonicalize resolves a raw batch label to its canonical form and, when a
// reference row is known, the manufacturing year and SKU recorded for it.
func (s RefSnapshot) Canonicalize(raw string) Info {
	canonical := NormalizeLabel(raw)
	if corrected, ok := s.corrections[canonical]; ok {
		canonical = corrected
	}
	info := Info{Canonical: canonical}
	if ref, ok := s.refs[canonical]; ok {
		year := ref.ManufacturingYear
		info.ManufacturingYear = &year
		info.SKUHint = ref.SKU
	}
	return info
}

// Ref returns the reference row stored for a canonical label
func (s RefSnapshot) Ref(canonical string) (LotReference, bool) {
	ref, ok := s.refs[canonical]
	return ref, ok
}

// References returns a copy of all reference rows in the snapshot
func (s RefSnapshot) References() []LotReference {
	out := make([]LotReference, 0, len(s.refs))
	for _, ref := range s.refs {
		out = append(out, ref)
	}
	return out
}

// ActiveReferences returns the rows with manufacturing year at or above
// minYear. Older rows stay in the snapshot but contribute nothing here.
func (s RefSnapshot) ActiveReferences(minYear int) []LotReference {
	out := make([]LotReference, 0, len(s.refs))
	for _, ref := range s.refs {
		if ref.IsActive(minYear) {
			out = append(out, ref)
		}
	}
	return out
}

// Size returns the number of reference rows in the snapshot
func (s RefSnapshot) Size() int {
	return len(s.refs)
}
