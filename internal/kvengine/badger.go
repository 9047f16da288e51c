package kvengine

import (
	"context"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	badgeropts "github.com/dgraph-io/badger/v4/options"

	"github.com/spokdb/spok/pkg/spokerr"
)

// BadgerEngine implements Engine on top of BadgerDB.
//
// Lifetime safety: Close marks the handle logically closed, rejecting
// new top-level operations, but the underlying *badger.DB is only
// physically closed once every iterator/snapshot created before (or
// racing) the Close call has released its own reference. This is the
// shared-ownership discipline the KV engine's lifetime contract
// requires: an outstanding borrower must never observe a
// use-after-close, regardless of interleaving.
type BadgerEngine struct {
	mu     sync.Mutex
	db     *badger.DB
	refs   int  // live borrowers, including the engine's own baseline reference
	closed bool // Close has been called; no new top-level ops or borrows
}

// Options configures Open. The zero value opens with BadgerDB's own
// default options for the given path, except that ZSTD compression is
// always enabled and a nil Logger discards BadgerDB's log lines.
type Options struct {
	// Logger receives BadgerDB's internal log lines. Nil discards them.
	Logger badger.Logger
	// InMemory opens a transient, non-persistent store (used by tests).
	InMemory bool
}

// Open creates the column families implicitly (BadgerDB has none to
// create — they are realized as key prefixes) and returns a ready
// engine. Opening an existing store directory is idempotent.
func Open(path string, opts Options) (*BadgerEngine, error) {
	bopts := badger.DefaultOptions(path)
	bopts.Logger = opts.Logger
	bopts.InMemory = opts.InMemory
	bopts.Compression = badgeropts.ZSTD

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, spokerr.Wrap(spokerr.Engine, err, "open badger store")
	}
	return &BadgerEngine{db: db, refs: 1}, nil
}

// acquire returns the live db handle and increments the borrow count,
// or AlreadyClosed if the engine has been closed. Every top-level
// operation and every iterator/snapshot constructor must pair this
// with a release.
func (e *BadgerEngine) acquire() (*badger.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, spokerr.ErrAlreadyClosed
	}
	e.refs++
	return e.db, nil
}

func (e *BadgerEngine) release() {
	e.mu.Lock()
	e.refs--
	shouldClose := e.refs == 0
	db := e.db
	e.mu.Unlock()
	if shouldClose {
		_ = db.Close()
	}
}

// Close marks the engine closed for new operations. If iterators or
// snapshots are still outstanding, the physical BadgerDB close is
// deferred until the last of them releases its reference.
func (e *BadgerEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.refs--
	shouldClose := e.refs == 0
	db := e.db
	e.mu.Unlock()
	if shouldClose {
		return db.Close()
	}
	return nil
}

func (e *BadgerEngine) Get(ctx context.Context, cf ColumnFamily, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer e.release()

	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixedKey(cf, key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, spokerr.ErrNotFound
	}
	if err != nil {
		return nil, spokerr.Wrap(spokerr.Engine, err, "get")
	}
	return value, nil
}

func (e *BadgerEngine) Put(ctx context.Context, cf ColumnFamily, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := e.acquire()
	if err != nil {
		return err
	}
	defer e.release()

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Set(prefixedKey(cf, key), value)
	})
	if err != nil {
		return spokerr.Wrap(spokerr.Engine, err, "put")
	}
	return nil
}

// Delete is a no-op, not an error, on an absent key.
func (e *BadgerEngine) Delete(ctx context.Context, cf ColumnFamily, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := e.acquire()
	if err != nil {
		return err
	}
	defer e.release()

	err = db.Update(func(txn *badger.Txn) error {
		return txn.Delete(prefixedKey(cf, key))
	})
	if err != nil {
		return spokerr.Wrap(spokerr.Engine, err, "delete")
	}
	return nil
}

func (e *BadgerEngine) Exists(ctx context.Context, cf ColumnFamily, key []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	db, err := e.acquire()
	if err != nil {
		return false, err
	}
	defer e.release()

	found := false
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(prefixedKey(cf, key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, spokerr.Wrap(spokerr.Engine, err, "exists")
	}
	return found, nil
}

// WriteBatch commits every op inside a single BadgerDB transaction so
// the batch is atomic: BadgerDB's own WriteBatch helper may split
// large batches across multiple internal commits, which would not
// give the all-or-nothing guarantee the index's cross-family writes
// depend on.
func (e *BadgerEngine) WriteBatch(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db, err := e.acquire()
	if err != nil {
		return err
	}
	defer e.release()

	err = db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			key := prefixedKey(op.CF, op.Key)
			switch op.Kind {
			case OpPut:
				if err := txn.Set(key, op.Value); err != nil {
					return err
				}
			case OpDelete:
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return spokerr.Wrap(spokerr.Engine, err, "write batch")
	}
	return nil
}

func (e *BadgerEngine) PrefixIterator(ctx context.Context, cf ColumnFamily, prefix []byte) (Iterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := e.acquire()
	if err != nil {
		return nil, err
	}

	txn := db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefixedKey(cf, prefix)
	it := txn.NewIterator(opts)

	return &badgerIterator{
		engine: e,
		txn:    txn,
		it:     it,
		prefix: opts.Prefix,
	}, nil
}

func (e *BadgerEngine) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	db, err := e.acquire()
	if err != nil {
		return nil, err
	}
	return &badgerSnapshot{engine: e, txn: db.NewTransaction(false)}, nil
}

func prefixedKey(cf ColumnFamily, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(cf)
	copy(out[1:], key)
	return out
}
