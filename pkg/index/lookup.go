package index

import "context"

// Result is one matched triple's ID components.
type Result struct {
	Subject, Predicate, Object uint64
}

// Cursor walks the matches of a pattern lookup in the chosen index's
// natural key order.
type Cursor struct {
	pat  Pattern
	plan Plan
	it   interface {
		Next(ctx context.Context) bool
		Key() []byte
		Err() error
		Close() error
	}
	current Result
	err     error
}

// Lookup opens a cursor over every stored triple matching pat. The
// caller must Close the cursor when done.
func (idx *Index) Lookup(ctx context.Context, pat Pattern) (*Cursor, error) {
	plan := SelectIndex(pat)
	it, err := idx.engine.PrefixIterator(ctx, plan.CF, plan.Prefix)
	if err != nil {
		return nil, err
	}
	return &Cursor{pat: pat, plan: plan, it: it}, nil
}

// Next advances the cursor, skipping any row that fails the residual
// pattern check, and reports whether a matching row is now current.
func (c *Cursor) Next(ctx context.Context) bool {
	for c.it.Next(ctx) {
		s, p, o, err := KeyToTriple(c.plan.CF, c.it.Key())
		if err != nil {
			c.err = err
			return false
		}
		if !TripleMatchesPattern(c.pat, s, p, o) {
			continue
		}
		c.current = Result{Subject: s, Predicate: p, Object: o}
		return true
	}
	c.err = c.it.Err()
	return false
}

// Triple returns the row the most recent Next call landed on.
func (c *Cursor) Triple() Result { return c.current }

func (c *Cursor) Err() error   { return c.err }
func (c *Cursor) Close() error { return c.it.Close() }

// LookupAll collects every match of pat into a slice. Prefer Lookup
// directly for large result sets.
func (idx *Index) LookupAll(ctx context.Context, pat Pattern) ([]Result, error) {
	c, err := idx.Lookup(ctx, pat)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	var out []Result
	for c.Next(ctx) {
		out = append(out, c.Triple())
	}
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count reports how many stored triples match pat. It scans the
// selected index; there is no maintained per-pattern counter.
func (idx *Index) Count(ctx context.Context, pat Pattern) (int, error) {
	c, err := idx.Lookup(ctx, pat)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	n := 0
	for c.Next(ctx) {
		n++
	}
	if err := c.Err(); err != nil {
		return 0, err
	}
	return n, nil
}
