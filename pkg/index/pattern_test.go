package index

import (
	"testing"

	"github.com/spokdb/spok/internal/kvengine"
)

func u(v uint64) *uint64 { return &v }

func TestSelectIndexAllEightShapes(t *testing.T) {
	cases := []struct {
		name   string
		pat    Pattern
		wantCF kvengine.ColumnFamily
		wantN  int // expected prefix length in bytes
	}{
		{"SPO", Bound(u(1), u(2), u(3)), kvengine.CFSPO, 24},
		{"SP_", Bound(u(1), u(2), nil), kvengine.CFSPO, 16},
		{"S__", Bound(u(1), nil, nil), kvengine.CFSPO, 8},
		{"_PO", Bound(nil, u(2), u(3)), kvengine.CFPOS, 16},
		{"_P_", Bound(nil, u(2), nil), kvengine.CFPOS, 8},
		{"__O", Bound(nil, nil, u(3)), kvengine.CFOSP, 8},
		{"S_O", Bound(u(1), nil, u(3)), kvengine.CFOSP, 16},
		{"___", Bound(nil, nil, nil), kvengine.CFSPO, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			plan := SelectIndex(c.pat)
			if plan.CF != c.wantCF {
				t.Errorf("CF = %v, want %v", plan.CF, c.wantCF)
			}
			if len(plan.Prefix) != c.wantN {
				t.Errorf("prefix len = %d, want %d", len(plan.Prefix), c.wantN)
			}
		})
	}
}

func TestSelectIndexSObUsesOSPWithBoundPositionsAdjacent(t *testing.T) {
	plan := SelectIndex(Bound(u(10), nil, u(20)))
	if plan.CF != kvengine.CFOSP {
		t.Fatalf("CF = %v, want OSP", plan.CF)
	}
	want := concat(20, 10) // object then subject
	if string(plan.Prefix) != string(want) {
		t.Fatalf("prefix = %v, want %v", plan.Prefix, want)
	}
}

func TestTripleMatchesPattern(t *testing.T) {
	pat := Bound(u(1), nil, u(3))
	if !TripleMatchesPattern(pat, 1, 999, 3) {
		t.Error("expected match with wildcard predicate")
	}
	if TripleMatchesPattern(pat, 1, 999, 4) {
		t.Error("expected mismatch on bound object")
	}
	if TripleMatchesPattern(pat, 2, 999, 3) {
		t.Error("expected mismatch on bound subject")
	}
}

func TestTripleMatchesFullWildcardAlwaysTrue(t *testing.T) {
	if !TripleMatchesPattern(Bound(nil, nil, nil), 1, 2, 3) {
		t.Error("full wildcard pattern should match anything")
	}
}
