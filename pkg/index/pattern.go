// Package index implements the SPO/POS/OSP triple indexing scheme
// and the pattern selector that picks which of the three orderings a
// given (subject, predicate, object) query pattern should scan.
package index

import (
	"encoding/binary"

	"github.com/spokdb/spok/internal/kvengine"
)

// Pattern is a triple query pattern. A nil field is a wildcard; a
// non-nil field is bound to that exact ID.
type Pattern struct {
	Subject   *uint64
	Predicate *uint64
	Object    *uint64
}

// Bound builds a pattern binding some subset of positions. Pass nil
// for a wildcard position.
func Bound(s, p, o *uint64) Pattern {
	return Pattern{Subject: s, Predicate: p, Object: o}
}

// FilterKind describes whether a Plan's scan results still need a
// full-pattern check before being returned to the caller.
type FilterKind int

const (
	// NoFilterNeeded means the index prefix alone already selects
	// exactly the matching rows.
	NoFilterNeeded FilterKind = iota
	// ResidualFilter means TripleMatchesPattern must still be applied
	// to each scanned row. Every shape in this scheme happens to have
	// a prefix that is already exact, so this is only ever applied
	// defensively, never because the prefix under-selects.
	ResidualFilter
)

// Plan is the result of selecting an index and scan prefix for a
// pattern.
type Plan struct {
	CF     kvengine.ColumnFamily
	Prefix []byte
	Filter FilterKind
}

// SelectIndex picks the column family and scan prefix for p. The
// eight possible bound/wildcard combinations map onto the three
// physical orderings as follows:
//
//	S P O   -> SPO, 24-byte exact prefix
//	S P _   -> SPO, 16-byte prefix
//	S _ _   -> SPO, 8-byte prefix
//	_ P O   -> POS, 16-byte prefix
//	_ P _   -> POS, 8-byte prefix
//	_ _ O   -> OSP, 8-byte prefix
//	S _ O   -> OSP, 16-byte prefix (o then s, so the two bound
//	           positions are adjacent at the front of the key)
//	_ _ _   -> SPO, empty prefix (full scan)
//
// Every branch above already produces an exact-selecting prefix, so
// ResidualFilter is applied uniformly rather than only where
// necessary: every plan with at least one bound position carries it,
// and only the full scan carries NoFilterNeeded.
func SelectIndex(p Pattern) Plan {
	switch {
	case p.Subject != nil && p.Predicate != nil && p.Object != nil:
		return Plan{CF: kvengine.CFSPO, Prefix: concat(*p.Subject, *p.Predicate, *p.Object), Filter: ResidualFilter}

	case p.Subject != nil && p.Predicate != nil:
		return Plan{CF: kvengine.CFSPO, Prefix: concat(*p.Subject, *p.Predicate), Filter: ResidualFilter}

	case p.Subject != nil && p.Object != nil:
		// OSP orders (object, subject, predicate); both bound
		// positions land at the front of the key.
		return Plan{CF: kvengine.CFOSP, Prefix: concat(*p.Object, *p.Subject), Filter: ResidualFilter}

	case p.Predicate != nil && p.Object != nil:
		return Plan{CF: kvengine.CFPOS, Prefix: concat(*p.Predicate, *p.Object), Filter: ResidualFilter}

	case p.Subject != nil:
		return Plan{CF: kvengine.CFSPO, Prefix: concat(*p.Subject), Filter: ResidualFilter}

	case p.Predicate != nil:
		return Plan{CF: kvengine.CFPOS, Prefix: concat(*p.Predicate), Filter: ResidualFilter}

	case p.Object != nil:
		return Plan{CF: kvengine.CFOSP, Prefix: concat(*p.Object), Filter: ResidualFilter}

	default:
		return Plan{CF: kvengine.CFSPO, Prefix: nil, Filter: NoFilterNeeded}
	}
}

// TripleMatchesPattern reports whether (s, p, o) satisfies every
// bound position of pat. Every scan path applies this regardless of
// whether the chosen prefix could theoretically already guarantee it,
// so a future change to the key layout cannot silently reintroduce
// false positives.
func TripleMatchesPattern(pat Pattern, s, p, o uint64) bool {
	if pat.Subject != nil && *pat.Subject != s {
		return false
	}
	if pat.Predicate != nil && *pat.Predicate != p {
		return false
	}
	if pat.Object != nil && *pat.Object != o {
		return false
	}
	return true
}

func concat(vals ...uint64) []byte {
	out := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint64(out[i*8:], v)
	}
	return out
}
