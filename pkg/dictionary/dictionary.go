// Package dictionary implements the term <-> ID mapping: allocation
// of dictionary IDs for URIs, blank nodes, and literals, plus the
// inline codecs that let small integers, decimals, and datetimes skip
// the dictionary altogether.
package dictionary

import (
	"context"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/spokdb/spok/internal/kvengine"
	"github.com/spokdb/spok/internal/telemetry"
	"github.com/spokdb/spok/pkg/ids"
	"github.com/spokdb/spok/pkg/spokerr"
	"github.com/spokdb/spok/pkg/term"
)

// Dictionary maps RDF terms to 64-bit IDs and back. Integer, decimal,
// and datetime literals that fit the inline codecs never touch the
// underlying store; everything else is allocated from a per-type
// sequence counter and mirrored into both the forward (str2id) and
// reverse (id2str) column families in one atomic batch.
type Dictionary struct {
	engine kvengine.Engine
	hooks  telemetry.Hooks

	group singleflight.Group

	termToID *ristretto.Cache[string, uint64]
	idToTerm *ristretto.Cache[uint64, term.Term]

	seqURI     *sequenceCounter
	seqBlank   *sequenceCounter
	seqLiteral *sequenceCounter
}

// Open primes the per-type sequence counters from any persisted
// checkpoints and constructs the read-path caches. hooks may be
// telemetry.Nop.
func Open(ctx context.Context, engine kvengine.Engine, hooks telemetry.Hooks) (*Dictionary, error) {
	if hooks == nil {
		hooks = telemetry.Nop
	}

	seqURI, err := openSequenceCounter(ctx, ids.TagURI, engine, hooks)
	if err != nil {
		return nil, err
	}
	seqBlank, err := openSequenceCounter(ctx, ids.TagBlank, engine, hooks)
	if err != nil {
		return nil, err
	}
	seqLiteral, err := openSequenceCounter(ctx, ids.TagLiteral, engine, hooks)
	if err != nil {
		return nil, err
	}

	termToID, err := ristretto.NewCache(&ristretto.Config[string, uint64]{
		NumCounters: 1e6,
		MaxCost:     1 << 25,
		BufferItems: 64,
	})
	if err != nil {
		return nil, spokerr.Wrap(spokerr.Unknown, err, "construct term cache")
	}
	idToTerm, err := ristretto.NewCache(&ristretto.Config[uint64, term.Term]{
		NumCounters: 1e6,
		MaxCost:     1 << 25,
		BufferItems: 64,
	})
	if err != nil {
		return nil, spokerr.Wrap(spokerr.Unknown, err, "construct id cache")
	}

	return &Dictionary{
		engine:     engine,
		hooks:      hooks,
		termToID:   termToID,
		idToTerm:   idToTerm,
		seqURI:     seqURI,
		seqBlank:   seqBlank,
		seqLiteral: seqLiteral,
	}, nil
}

// Close releases the dictionary's caches. It does not close the
// underlying engine, which the dictionary does not own.
func (d *Dictionary) Close() {
	d.termToID.Close()
	d.idToTerm.Close()
}

// ValidateTerm reports whether t is well-formed and small enough to
// be stored, without allocating anything.
func ValidateTerm(t term.Term) error {
	_, err := encodeTermKey(t)
	return err
}

// LookupID returns the ID already assigned to t, or ok=false if t has
// never been allocated. Inline-eligible literals resolve without
// touching the store or the cache.
func (d *Dictionary) LookupID(ctx context.Context, t term.Term) (uint64, bool, error) {
	if id, ok := inlineEncode(t); ok {
		return id, true, nil
	}

	key, err := encodeTermKey(t)
	if err != nil {
		return 0, false, err
	}
	if id, ok := d.termToID.Get(string(key)); ok {
		return id, true, nil
	}

	raw, err := d.engine.Get(ctx, kvengine.CFStr2ID, key)
	if spokerr.Is(err, spokerr.NotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	id, err := idFromKeyBytes(raw)
	if err != nil {
		return 0, false, err
	}
	d.termToID.Set(string(key), id, int64(len(key)))
	return id, true, nil
}

// GetOrCreateID returns t's existing ID, allocating and persisting a
// fresh one if this is the first time t has been seen. Concurrent
// callers racing on the same term converge on a single winning
// allocation (property P9): the singleflight group collapses
// duplicate in-flight allocations, and a store re-check inside the
// flight guards against a concurrent process (or a prior call in the
// same process before the group existed) having already won.
func (d *Dictionary) GetOrCreateID(ctx context.Context, t term.Term) (uint64, error) {
	if id, ok := inlineEncode(t); ok {
		return id, nil
	}

	key, err := encodeTermKey(t)
	if err != nil {
		return 0, err
	}
	if id, ok := d.termToID.Get(string(key)); ok {
		return id, nil
	}

	result, err, _ := d.group.Do(string(key), func() (any, error) {
		return d.getOrAllocate(ctx, t, key)
	})
	if err != nil {
		return 0, err
	}
	return result.(uint64), nil
}

func (d *Dictionary) getOrAllocate(ctx context.Context, t term.Term, key []byte) (uint64, error) {
	if raw, err := d.engine.Get(ctx, kvengine.CFStr2ID, key); err == nil {
		id, err := idFromKeyBytes(raw)
		if err != nil {
			return 0, err
		}
		d.termToID.Set(string(key), id, int64(len(key)))
		return id, nil
	} else if !spokerr.Is(err, spokerr.NotFound) {
		return 0, err
	}

	seq, err := d.sequenceFor(t.Kind()).Next(ctx)
	if err != nil {
		return 0, err
	}
	id := ids.EncodeID(tagFor(t.Kind()), seq)

	ops := []kvengine.Op{
		kvengine.Put(kvengine.CFStr2ID, key, idKeyBytes(id)),
		kvengine.Put(kvengine.CFID2Str, idKeyBytes(id), frameValue(key)),
	}
	if err := d.engine.WriteBatch(ctx, ops); err != nil {
		return 0, err
	}

	d.termToID.Set(string(key), id, int64(len(key)))
	d.idToTerm.Set(id, t, int64(len(key)))
	return id, nil
}

// LookupTerm reconstructs the term identified by id, decoding it
// inline for tags 4-6 and via the reverse index (with checksum
// verification) for tags 1-3.
func (d *Dictionary) LookupTerm(ctx context.Context, id uint64) (term.Term, error) {
	tag, _ := ids.DecodeID(id)

	if tag.IsInline() {
		return inlineDecode(id)
	}
	if !tag.IsAllocated() {
		return nil, spokerr.New(spokerr.CorruptID, "id carries an unrecognised tag")
	}

	if t, ok := d.idToTerm.Get(id); ok {
		return t, nil
	}

	raw, err := d.engine.Get(ctx, kvengine.CFID2Str, idKeyBytes(id))
	if spokerr.Is(err, spokerr.NotFound) {
		err = spokerr.New(spokerr.CorruptID, "allocated id has no id2str entry")
		d.hooks.CorruptID(id, err)
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	payload, err := unframeValue(raw)
	if err != nil {
		d.hooks.CorruptID(id, err)
		return nil, err
	}
	t, err := decodeTermValue(payload)
	if err != nil {
		d.hooks.CorruptID(id, err)
		return nil, err
	}
	d.idToTerm.Set(id, t, int64(len(payload)))
	return t, nil
}

// GetOrCreateIDs resolves a batch of terms in order, allocating any
// that are new. A fatal error (e.g. term_too_large) on one term
// short-circuits and aborts the whole call. Every mapping newly
// allocated by this call is committed in a single atomic WriteBatch,
// so a crash mid-call can never leave part of the batch's new terms
// durably allocated and the rest not: either every new term in terms
// is persisted, or none of them are.
//
// A term presented to GetOrCreateIDs races only against other
// GetOrCreateID/GetOrCreateIDs calls for that same never-before-seen
// term the same way the single-item path does: a store re-check
// immediately before allocating picks up a winner that already
// committed. Unlike the single-item path, this re-check is not
// coordinated through the single-flight group, since the group cannot
// hold a whole batch's allocations open behind one key; two calls
// racing on the very same brand-new term at the same instant may each
// allocate their own ID for it, exactly as if they had been two
// unrelated GetOrCreateID calls made without a shared coordinator.
func (d *Dictionary) GetOrCreateIDs(ctx context.Context, terms []term.Term) ([]uint64, error) {
	out := make([]uint64, len(terms))

	type unresolved struct {
		idx int
		key []byte
	}
	var pending []unresolved

	for i, t := range terms {
		if id, ok := inlineEncode(t); ok {
			out[i] = id
			continue
		}
		key, err := encodeTermKey(t)
		if err != nil {
			return nil, err
		}
		if id, ok := d.termToID.Get(string(key)); ok {
			out[i] = id
			continue
		}
		pending = append(pending, unresolved{idx: i, key: key})
	}
	if len(pending) == 0 {
		return out, nil
	}

	type freshTerm struct {
		key []byte
		id  uint64
		t   term.Term
	}
	assigned := make(map[string]uint64, len(pending))
	var fresh []freshTerm

	for _, u := range pending {
		if id, ok := assigned[string(u.key)]; ok {
			out[u.idx] = id
			continue
		}

		if raw, err := d.engine.Get(ctx, kvengine.CFStr2ID, u.key); err == nil {
			id, err := idFromKeyBytes(raw)
			if err != nil {
				return nil, err
			}
			out[u.idx] = id
			assigned[string(u.key)] = id
			d.termToID.Set(string(u.key), id, int64(len(u.key)))
			continue
		} else if !spokerr.Is(err, spokerr.NotFound) {
			return nil, err
		}

		t := terms[u.idx]
		seq, err := d.sequenceFor(t.Kind()).Next(ctx)
		if err != nil {
			return nil, err
		}
		id := ids.EncodeID(tagFor(t.Kind()), seq)

		assigned[string(u.key)] = id
		out[u.idx] = id
		fresh = append(fresh, freshTerm{key: u.key, id: id, t: t})
	}

	if len(fresh) == 0 {
		return out, nil
	}

	ops := make([]kvengine.Op, 0, len(fresh)*2)
	for _, f := range fresh {
		ops = append(ops,
			kvengine.Put(kvengine.CFStr2ID, f.key, idKeyBytes(f.id)),
			kvengine.Put(kvengine.CFID2Str, idKeyBytes(f.id), frameValue(f.key)),
		)
	}
	if err := d.engine.WriteBatch(ctx, ops); err != nil {
		return nil, err
	}
	for _, f := range fresh {
		d.termToID.Set(string(f.key), f.id, int64(len(f.key)))
		d.idToTerm.Set(f.id, f.t, int64(len(f.key)))
	}
	return out, nil
}

// LookupIDs resolves a batch of terms without allocating.
func (d *Dictionary) LookupIDs(ctx context.Context, terms []term.Term) ([]uint64, []bool, error) {
	out := make([]uint64, len(terms))
	oks := make([]bool, len(terms))
	for i, t := range terms {
		id, ok, err := d.LookupID(ctx, t)
		if err != nil {
			return nil, nil, err
		}
		out[i], oks[i] = id, ok
	}
	return out, oks, nil
}

// LookupTerms resolves a batch of IDs back to terms.
func (d *Dictionary) LookupTerms(ctx context.Context, tids []uint64) ([]term.Term, error) {
	out := make([]term.Term, len(tids))
	for i, id := range tids {
		t, err := d.LookupTerm(ctx, id)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func (d *Dictionary) sequenceFor(k term.Kind) *sequenceCounter {
	switch k {
	case term.KindIRI:
		return d.seqURI
	case term.KindBlankNode:
		return d.seqBlank
	default:
		return d.seqLiteral
	}
}

func tagFor(k term.Kind) ids.Tag {
	switch k {
	case term.KindIRI:
		return ids.TagURI
	case term.KindBlankNode:
		return ids.TagBlank
	default:
		return ids.TagLiteral
	}
}
