// Package spok is the RDF triple-store storage core: a dictionary
// mapping RDF terms to compact 64-bit identifiers, stacked on a
// three-way (SPO/POS/OSP) triple index, over a pluggable ordered
// key-value engine. It intentionally does not parse RDF
// serialisations, evaluate SPARQL, or coordinate multi-writer
// transactions — those are external collaborators built on this
// package's contracts.
package spok

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/spokdb/spok/internal/kvengine"
	"github.com/spokdb/spok/internal/telemetry"
	"github.com/spokdb/spok/pkg/dictionary"
	"github.com/spokdb/spok/pkg/index"
	"github.com/spokdb/spok/pkg/term"
)

// Options configures Open.
type Options struct {
	// Engine is passed through to the underlying key-value engine.
	Engine kvengine.Options
	// Hooks receives sequence-exhaustion and integrity notifications.
	// A nil Hooks defaults to telemetry.Nop.
	Hooks telemetry.Hooks
}

// Store is the storage core's façade: a Dictionary and an Index
// wired to a shared key-value engine.
type Store struct {
	engine *kvengine.BadgerEngine
	dict   *dictionary.Dictionary
	idx    *index.Index
}

// Open opens (creating if absent) the store rooted at path.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	hooks := opts.Hooks
	if hooks == nil {
		hooks = telemetry.Nop
	}

	engine, err := kvengine.Open(path, opts.Engine)
	if err != nil {
		return nil, err
	}

	dict, err := dictionary.Open(ctx, engine, hooks)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	idx, err := index.Open(ctx, engine, hooks)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	return &Store{engine: engine, dict: dict, idx: idx}, nil
}

// Close releases the store's caches and the underlying engine.
// A cursor opened before Close does not crash afterwards: its index
// iterator keeps its engine reference, but resolving a row's ids back
// to terms reads through the closed engine, so the cursor's Next stops
// with an already_closed error instead of yielding further triples.
func (s *Store) Close() error {
	s.dict.Close()
	return s.engine.Close()
}

// InsertTriple resolves s, p, and o to dictionary IDs (allocating any
// that are new) and inserts the resulting triple into all three
// index orderings atomically.
func (s *Store) InsertTriple(ctx context.Context, subj, pred, obj term.Term) error {
	return s.InsertTriples(ctx, []term.Triple{term.NewTriple(subj, pred, obj)})
}

// InsertTriples resolves a batch of triples' terms via one
// GetOrCreateIDs call, so every newly-allocated term across the whole
// batch commits in a single atomic dictionary write, then inserts the
// resulting id triples into all three index orderings in a second
// atomic batch.
func (s *Store) InsertTriples(ctx context.Context, triples []term.Triple) error {
	terms := make([]term.Term, 0, len(triples)*3)
	for _, t := range triples {
		terms = append(terms, t.Subject, t.Predicate, t.Object)
	}
	resolved, err := s.dict.GetOrCreateIDs(ctx, terms)
	if err != nil {
		return err
	}

	idTriples := make([]index.Triple, len(triples))
	for i := range triples {
		idTriples[i] = index.Triple{
			Subject:   resolved[i*3],
			Predicate: resolved[i*3+1],
			Object:    resolved[i*3+2],
		}
	}
	return s.idx.InsertTriples(ctx, idTriples)
}

// DeleteTriple removes (subj, pred, obj) if present. If any of the
// three terms was never allocated, the triple cannot exist and this
// is a no-op, consistent with deleting an absent triple never being
// an error.
func (s *Store) DeleteTriple(ctx context.Context, subj, pred, obj term.Term) error {
	return s.DeleteTriples(ctx, []term.Triple{term.NewTriple(subj, pred, obj)})
}

// DeleteTriples resolves a batch of triples' terms via one LookupIDs
// call and removes every triple whose three terms were all previously
// allocated in one atomic index batch. A triple with any never-
// allocated term cannot exist and is silently skipped.
func (s *Store) DeleteTriples(ctx context.Context, triples []term.Triple) error {
	terms := make([]term.Term, 0, len(triples)*3)
	for _, t := range triples {
		terms = append(terms, t.Subject, t.Predicate, t.Object)
	}
	resolved, oks, err := s.dict.LookupIDs(ctx, terms)
	if err != nil {
		return err
	}

	var idTriples []index.Triple
	for i := range triples {
		si, pi, oi := i*3, i*3+1, i*3+2
		if !oks[si] || !oks[pi] || !oks[oi] {
			continue
		}
		idTriples = append(idTriples, index.Triple{Subject: resolved[si], Predicate: resolved[pi], Object: resolved[oi]})
	}
	if len(idTriples) == 0 {
		return nil
	}
	return s.idx.DeleteTriples(ctx, idTriples)
}

// TripleExists reports whether (subj, pred, obj) is currently stored.
// A term that was never allocated makes the triple trivially absent.
func (s *Store) TripleExists(ctx context.Context, subj, pred, obj term.Term) (bool, error) {
	sid, ok, err := s.dict.LookupID(ctx, subj)
	if err != nil || !ok {
		return false, err
	}
	pid, ok, err := s.dict.LookupID(ctx, pred)
	if err != nil || !ok {
		return false, err
	}
	oid, ok, err := s.dict.LookupID(ctx, obj)
	if err != nil || !ok {
		return false, err
	}
	return s.idx.TripleExists(ctx, sid, pid, oid)
}

// Pattern is a term-level triple query pattern; a nil field is a
// wildcard.
type Pattern struct {
	Subject   term.Term
	Predicate term.Term
	Object    term.Term
}

// Cursor walks the term-level matches of a Query.
type Cursor struct {
	dict    *dictionary.Dictionary
	inner   *index.Cursor
	current term.Triple
	err     error
}

// Query resolves the pattern's bound positions to IDs and opens a
// cursor over matching triples. A bound term that has never been
// allocated makes the pattern unsatisfiable; Query returns an
// immediately-exhausted cursor rather than an error in that case.
func (s *Store) Query(ctx context.Context, pat Pattern) (*Cursor, error) {
	idPat, ok, err := s.resolvePattern(ctx, pat)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Cursor{dict: s.dict, inner: nil}, nil
	}
	inner, err := s.idx.Lookup(ctx, idPat)
	if err != nil {
		return nil, err
	}
	return &Cursor{dict: s.dict, inner: inner}, nil
}

func (s *Store) resolvePattern(ctx context.Context, pat Pattern) (index.Pattern, bool, error) {
	var idPat index.Pattern
	if pat.Subject != nil {
		id, ok, err := s.dict.LookupID(ctx, pat.Subject)
		if err != nil || !ok {
			return idPat, false, err
		}
		idPat.Subject = &id
	}
	if pat.Predicate != nil {
		id, ok, err := s.dict.LookupID(ctx, pat.Predicate)
		if err != nil || !ok {
			return idPat, false, err
		}
		idPat.Predicate = &id
	}
	if pat.Object != nil {
		id, ok, err := s.dict.LookupID(ctx, pat.Object)
		if err != nil || !ok {
			return idPat, false, err
		}
		idPat.Object = &id
	}
	return idPat, true, nil
}

// Next advances the cursor and reports whether a matching triple is
// now current.
func (c *Cursor) Next(ctx context.Context) bool {
	if c.inner == nil {
		return false
	}
	if !c.inner.Next(ctx) {
		c.err = c.inner.Err()
		return false
	}
	r := c.inner.Triple()
	subj, err := c.dict.LookupTerm(ctx, r.Subject)
	if err != nil {
		c.err = err
		return false
	}
	pred, err := c.dict.LookupTerm(ctx, r.Predicate)
	if err != nil {
		c.err = err
		return false
	}
	obj, err := c.dict.LookupTerm(ctx, r.Object)
	if err != nil {
		c.err = err
		return false
	}
	c.current = term.NewTriple(subj, pred, obj)
	return true
}

// Triple returns the row the most recent Next call landed on.
func (c *Cursor) Triple() term.Triple { return c.current }

func (c *Cursor) Err() error { return c.err }

// Close releases the cursor's iterator, if any.
func (c *Cursor) Close() error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Close()
}

// QueryAll collects every match of pat into a slice.
func (s *Store) QueryAll(ctx context.Context, pat Pattern) ([]term.Triple, error) {
	c, err := s.Query(ctx, pat)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var out []term.Triple
	for c.Next(ctx) {
		out = append(out, c.Triple())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count reports how many stored triples match pat.
func (s *Store) Count(ctx context.Context, pat Pattern) (int, error) {
	idPat, ok, err := s.resolvePattern(ctx, pat)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return s.idx.Count(ctx, idPat)
}

// PredicateUniverse returns the set of every predicate ID ever
// inserted; see index.Index.PredicateUniverse for its append-only,
// advisory semantics.
func (s *Store) PredicateUniverse() *roaring64.Bitmap {
	return s.idx.PredicateUniverse()
}
