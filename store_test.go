package spok

import (
	"context"
	"testing"

	"github.com/spokdb/spok/pkg/term"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Scenario 1: inline integer path.
func TestInlineIntegerScenario(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	lit := term.NewTypedLiteral("42", term.XSDInteger)
	if err := s.InsertTriple(ctx, term.NewIRI("http://example.org/a"), term.NewIRI("http://example.org/p"), lit); err != nil {
		t.Fatalf("InsertTriple: %v", err)
	}

	ok, err := s.TripleExists(ctx, term.NewIRI("http://example.org/a"), term.NewIRI("http://example.org/p"), lit)
	if err != nil || !ok {
		t.Fatalf("TripleExists = %v, %v, want true, nil", ok, err)
	}
}

// Scenario 2: URI allocation and mirror.
func TestURIAllocationScenario(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	uri := term.NewIRI("http://example.org/a")
	id1, err := s.dict.GetOrCreateID(ctx, uri)
	if err != nil {
		t.Fatalf("GetOrCreateID: %v", err)
	}
	want := uint64(1)<<60 | 1
	if id1 != want {
		t.Fatalf("first URI allocation = %d, want %d", id1, want)
	}

	id2, err := s.dict.GetOrCreateID(ctx, uri)
	if err != nil {
		t.Fatalf("GetOrCreateID (repeat): %v", err)
	}
	if id2 != id1 {
		t.Fatalf("re-allocating the same URI produced a different id: %d vs %d", id2, id1)
	}
}

// Scenario 3: all 8 pattern shapes, including the S?O residual filter.
func TestAllEightPatternShapesScenario(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	one := term.NewIRI("http://example.org/1")
	knows := term.NewIRI("http://example.org/knows")
	two := term.NewIRI("http://example.org/2")
	likes := term.NewIRI("http://example.org/likes")
	pizza := term.NewIRI("http://example.org/pizza")

	if err := s.InsertTriple(ctx, one, knows, two); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertTriple(ctx, one, likes, pizza); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		pat  Pattern
		want int
	}{
		{"SPO(knows)", Pattern{Subject: one, Predicate: knows, Object: two}, 1},
		{"SP_(knows)", Pattern{Subject: one, Predicate: knows}, 1},
		{"S__", Pattern{Subject: one}, 2},
		{"_PO(likes,pizza)", Pattern{Predicate: likes, Object: pizza}, 1},
		{"_P_(knows)", Pattern{Predicate: knows}, 1},
		{"__O(pizza)", Pattern{Object: pizza}, 1},
		{"S_O(1,pizza)", Pattern{Subject: one, Object: pizza}, 1},
		{"___", Pattern{}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := s.QueryAll(ctx, c.pat)
			if err != nil {
				t.Fatalf("QueryAll: %v", err)
			}
			if len(got) != c.want {
				t.Fatalf("got %d results, want %d: %+v", len(got), c.want, got)
			}
		})
	}

	// S?O must drop (1, knows, 2) and keep only (1, likes, pizza); the
	// OSP (pizza, 1) scan prefix already excludes the other triple.
	got, err := s.QueryAll(ctx, Pattern{Subject: one, Object: pizza})
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(got) != 1 || !got[0].Predicate.Equal(likes) {
		t.Fatalf("S?O result = %+v, want exactly (1, likes, pizza)", got)
	}
}

// Scenario 6: iterator-after-close.
func TestIteratorAfterCloseScenario(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	subj := term.NewIRI("http://example.org/s1")
	pred := term.NewIRI("http://example.org/p")
	for i := 0; i < 100; i++ {
		obj := term.NewIRI("http://example.org/o/" + itoa(i))
		if err := s.InsertTriple(ctx, subj, pred, obj); err != nil {
			t.Fatalf("InsertTriple %d: %v", i, err)
		}
	}

	cursor, err := s.Query(ctx, Pattern{Subject: subj})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	count := 0
	for cursor.Next(ctx) {
		count++
	}
	if err := cursor.Err(); err != nil {
		t.Fatalf("cursor error after close: %v", err)
	}
	if count != 100 {
		t.Fatalf("cursor after close yielded %d results, want 100", count)
	}
	if err := cursor.Close(); err != nil {
		t.Fatalf("cursor Close: %v", err)
	}
}

func TestDeleteTripleIsNoOpOnUnallocatedTerms(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.DeleteTriple(ctx,
		term.NewIRI("http://example.org/never-inserted-s"),
		term.NewIRI("http://example.org/never-inserted-p"),
		term.NewIRI("http://example.org/never-inserted-o"))
	if err != nil {
		t.Fatalf("DeleteTriple on unallocated terms: %v", err)
	}
}

func TestCountMatchesQueryAllLength(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	subj := term.NewIRI("http://example.org/s")
	for i := 0; i < 5; i++ {
		pred := term.NewIRI("http://example.org/p/" + itoa(i))
		if err := s.InsertTriple(ctx, subj, pred, term.NewLiteral("v")); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Count(ctx, Pattern{Subject: subj})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	all, err := s.QueryAll(ctx, Pattern{Subject: subj})
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if n != len(all) {
		t.Fatalf("Count = %d, QueryAll returned %d", n, len(all))
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
