package kvengine

import (
	"context"
	"sync"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/spokdb/spok/pkg/spokerr"
)

// badgerIterator wraps a read-only badger.Txn/Iterator pair. It holds
// a reference on the owning engine from construction until Close, so
// a concurrent Engine.Close cannot pull the store out from under it —
// the physical close is deferred until this iterator (and every other
// outstanding borrower) releases.
type badgerIterator struct {
	engine *BadgerEngine
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte

	started  bool
	closed   bool
	closeMu  sync.Mutex
	lastErr  error
}

func (i *badgerIterator) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		i.lastErr = err
		return false
	}
	if i.closed {
		return false
	}
	if !i.started {
		i.it.Seek(i.prefix)
		i.started = true
	} else {
		i.it.Next()
	}
	return i.it.ValidForPrefix(i.prefix)
}

func (i *badgerIterator) Key() []byte {
	if i.closed || !i.it.Valid() {
		return nil
	}
	// Item().KeyCopy would also strip nothing; the column-family
	// prefix byte is stripped here so callers see only the logical key.
	key := i.it.Item().KeyCopy(nil)
	if len(key) <= 1 {
		return nil
	}
	return key[1:]
}

func (i *badgerIterator) Value() []byte {
	if i.closed || !i.it.Valid() {
		return nil
	}
	val, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		i.lastErr = err
		return nil
	}
	return val
}

func (i *badgerIterator) Err() error { return i.lastErr }

func (i *badgerIterator) Close() error {
	i.closeMu.Lock()
	defer i.closeMu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	i.it.Close()
	i.txn.Discard()
	i.engine.release()
	return nil
}

// badgerSnapshot is a long-lived read transaction: BadgerDB's MVCC
// read transactions already capture a consistent point-in-time view
// that is unaffected by commits made after they were opened, which is
// exactly the snapshot contract this type exposes.
type badgerSnapshot struct {
	engine *BadgerEngine
	txn    *badger.Txn

	closeMu sync.Mutex
	closed  bool
}

func (s *badgerSnapshot) Get(ctx context.Context, cf ColumnFamily, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, spokerr.ErrAlreadyClosed
	}
	item, err := s.txn.Get(prefixedKey(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, spokerr.ErrNotFound
	}
	if err != nil {
		return nil, spokerr.Wrap(spokerr.Engine, err, "snapshot get")
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, spokerr.Wrap(spokerr.Engine, err, "snapshot get")
	}
	return val, nil
}

// PrefixIterator opens an iterator against this snapshot's own frozen
// transaction. It stays valid for as long as the snapshot itself does
// — the snapshot, not this iterator, is what holds the engine
// reference — so it is unaffected by any Engine.Close that happens
// after the snapshot was taken.
func (s *badgerSnapshot) PrefixIterator(ctx context.Context, cf ColumnFamily, prefix []byte) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, spokerr.ErrAlreadyClosed
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefixedKey(cf, prefix)
	it := s.txn.NewIterator(opts)
	return &snapshotIterator{it: it, prefix: opts.Prefix}, nil
}

func (s *badgerSnapshot) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.txn.Discard()
	s.engine.release()
	return nil
}

// snapshotIterator does not itself hold an engine reference — it
// borrows its parent snapshot's transaction, and the snapshot already
// holds the engine reference for the whole of its lifetime.
type snapshotIterator struct {
	it     *badger.Iterator
	prefix []byte

	started bool
	closed  bool
	lastErr error
}

func (i *snapshotIterator) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		i.lastErr = err
		return false
	}
	if i.closed {
		return false
	}
	if !i.started {
		i.it.Seek(i.prefix)
		i.started = true
	} else {
		i.it.Next()
	}
	return i.it.ValidForPrefix(i.prefix)
}

func (i *snapshotIterator) Key() []byte {
	if i.closed || !i.it.Valid() {
		return nil
	}
	key := i.it.Item().KeyCopy(nil)
	if len(key) <= 1 {
		return nil
	}
	return key[1:]
}

func (i *snapshotIterator) Value() []byte {
	if i.closed || !i.it.Valid() {
		return nil
	}
	val, err := i.it.Item().ValueCopy(nil)
	if err != nil {
		i.lastErr = err
		return nil
	}
	return val
}

func (i *snapshotIterator) Err() error { return i.lastErr }

func (i *snapshotIterator) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.it.Close()
	return nil
}
