package index

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/spokdb/spok/internal/kvengine"
	"github.com/spokdb/spok/internal/telemetry"
	"github.com/spokdb/spok/pkg/spokerr"
)

// predicateUniverseMarkerPrefix namespaces the persisted "predicate P
// has been seen at least once" markers within CFMeta, one byte per
// key so PredicateUniverse can be rebuilt on Open without keeping a
// serialized bitmap blob in sync on every insert.
const predicateUniverseMarkerPrefix = 0x50 // 'P'

// Index maintains the three orderings (SPO, POS, OSP) of the triple
// store and an advisory predicate universe, exposed through
// PredicateUniverse and not consulted by any lookup or existence
// check.
type Index struct {
	engine kvengine.Engine
	hooks  telemetry.Hooks

	mu        sync.Mutex
	predicate *roaring64.Bitmap
}

// Open loads the persisted predicate-universe markers into memory.
func Open(ctx context.Context, engine kvengine.Engine, hooks telemetry.Hooks) (*Index, error) {
	if hooks == nil {
		hooks = telemetry.Nop
	}
	idx := &Index{engine: engine, hooks: hooks, predicate: roaring64.New()}

	it, err := engine.PrefixIterator(ctx, kvengine.CFMeta, []byte{predicateUniverseMarkerPrefix})
	if err != nil {
		return nil, err
	}
	defer it.Close()
	for it.Next(ctx) {
		key := it.Key()
		if len(key) != 9 {
			hooks.InvalidKey("meta", key, spokerr.New(spokerr.InvalidKey, "predicate universe marker is not 9 bytes"))
			continue
		}
		idx.predicate.Add(binary.BigEndian.Uint64(key[1:]))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return idx, nil
}

// InsertTriple adds (s, p, o) to all three orderings atomically. It
// is idempotent: inserting an already-present triple is a no-op
// beyond the write itself.
func (idx *Index) InsertTriple(ctx context.Context, s, p, o uint64) error {
	return idx.InsertTriples(ctx, []Triple{{s, p, o}})
}

// Triple is a bare (subject, predicate, object) ID triple, as opposed
// to pkg/term's Triple of resolved terms.
type Triple struct {
	Subject, Predicate, Object uint64
}

// InsertTriples adds every triple in ts to all three orderings within
// a single atomic batch, plus any newly-seen predicate markers.
func (idx *Index) InsertTriples(ctx context.Context, ts []Triple) error {
	if len(ts) == 0 {
		return nil
	}

	ops := make([]kvengine.Op, 0, len(ts)*3)
	var newPredicates []uint64

	idx.mu.Lock()
	for _, t := range ts {
		ops = append(ops,
			kvengine.Put(kvengine.CFSPO, spoKey(t.Subject, t.Predicate, t.Object), nil),
			kvengine.Put(kvengine.CFPOS, posKey(t.Subject, t.Predicate, t.Object), nil),
			kvengine.Put(kvengine.CFOSP, ospKey(t.Subject, t.Predicate, t.Object), nil),
		)
		if !idx.predicate.Contains(t.Predicate) {
			idx.predicate.Add(t.Predicate)
			newPredicates = append(newPredicates, t.Predicate)
		}
	}
	idx.mu.Unlock()

	for _, p := range newPredicates {
		ops = append(ops, kvengine.Put(kvengine.CFMeta, predicateMarkerKey(p), nil))
	}

	return idx.engine.WriteBatch(ctx, ops)
}

// DeleteTriple removes (s, p, o) from all three orderings atomically.
// The predicate universe is never updated on delete: it is an
// append-only, best-effort record of every predicate ever inserted,
// not a reference count, so a predicate remains "known" even after
// its last triple is removed.
func (idx *Index) DeleteTriple(ctx context.Context, s, p, o uint64) error {
	return idx.DeleteTriples(ctx, []Triple{{s, p, o}})
}

// DeleteTriples removes every triple in ts within a single atomic
// batch.
func (idx *Index) DeleteTriples(ctx context.Context, ts []Triple) error {
	if len(ts) == 0 {
		return nil
	}
	ops := make([]kvengine.Op, 0, len(ts)*3)
	for _, t := range ts {
		ops = append(ops,
			kvengine.Delete(kvengine.CFSPO, spoKey(t.Subject, t.Predicate, t.Object)),
			kvengine.Delete(kvengine.CFPOS, posKey(t.Subject, t.Predicate, t.Object)),
			kvengine.Delete(kvengine.CFOSP, ospKey(t.Subject, t.Predicate, t.Object)),
		)
	}
	return idx.engine.WriteBatch(ctx, ops)
}

// TripleExists reports whether (s, p, o) is currently stored.
func (idx *Index) TripleExists(ctx context.Context, s, p, o uint64) (bool, error) {
	return idx.engine.Exists(ctx, kvengine.CFSPO, spoKey(s, p, o))
}

// PredicateUniverse returns a snapshot of every predicate ID ever
// inserted. It is advisory: a predicate that has had every one of its
// triples deleted still appears here, and a caller must not treat
// absence as authoritative proof that a predicate was never used
// concurrently with this call.
func (idx *Index) PredicateUniverse() *roaring64.Bitmap {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.predicate.Clone()
}

func spoKey(s, p, o uint64) []byte { return concat(s, p, o) }
func posKey(s, p, o uint64) []byte { return concat(p, o, s) }
func ospKey(s, p, o uint64) []byte { return concat(o, s, p) }

func predicateMarkerKey(p uint64) []byte {
	out := make([]byte, 9)
	out[0] = predicateUniverseMarkerPrefix
	binary.BigEndian.PutUint64(out[1:], p)
	return out
}

// KeyToTriple decodes a 24-byte index key back into its (subject,
// predicate, object) components, given which ordering it came from.
func KeyToTriple(cf kvengine.ColumnFamily, key []byte) (s, p, o uint64, err error) {
	if len(key) != 24 {
		return 0, 0, 0, spokerr.New(spokerr.InvalidKey, "index key is not 24 bytes")
	}
	a := binary.BigEndian.Uint64(key[0:8])
	b := binary.BigEndian.Uint64(key[8:16])
	c := binary.BigEndian.Uint64(key[16:24])

	switch cf {
	case kvengine.CFSPO:
		return a, b, c, nil
	case kvengine.CFPOS:
		// key = p, o, s
		return c, a, b, nil
	case kvengine.CFOSP:
		// key = o, s, p
		return b, c, a, nil
	default:
		return 0, 0, 0, spokerr.New(spokerr.InvalidKey, "not an index column family")
	}
}
