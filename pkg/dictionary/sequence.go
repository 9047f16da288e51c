package dictionary

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/spokdb/spok/internal/kvengine"
	"github.com/spokdb/spok/internal/telemetry"
	"github.com/spokdb/spok/pkg/ids"
	"github.com/spokdb/spok/pkg/spokerr"
)

// checkpointInterval is how often an allocated sequence value is
// durably persisted. Between checkpoints, an unclean shutdown can
// lose up to this many allocations; restart re-derives a safe
// starting point from the last checkpoint plus this margin so no
// previously issued ID is ever handed out twice.
const checkpointInterval = 1000

// sequenceCapacity bounds a per-type sequence counter to the range
// [1, 2^59-1], per the dictionary's sequence_overflow ceiling.
const sequenceCapacity = uint64(1) << 59

// sequenceCounter hands out a monotonically increasing, gap-tolerant
// stream of 60-bit sequence numbers for one allocated tag (URI, blank
// node, or literal), durable across restarts at a checkpoint
// granularity.
type sequenceCounter struct {
	tag     ids.Tag
	engine  kvengine.Engine
	hooks   telemetry.Hooks
	counter atomic.Uint64
	warned  atomic.Bool
}

func checkpointKey(tag ids.Tag) []byte {
	return []byte{0x53, byte(tag)} // 'S' + tag byte, within CFMeta
}

// openSequenceCounter loads the persisted checkpoint for tag, if any,
// and primes the in-memory counter with the restart safety margin
// (checkpointInterval - 1) so the first allocation after a restart
// always lands strictly beyond every value that could have been
// issued, checkpointed or not, before the crash.
func openSequenceCounter(ctx context.Context, tag ids.Tag, engine kvengine.Engine, hooks telemetry.Hooks) (*sequenceCounter, error) {
	sc := &sequenceCounter{tag: tag, engine: engine, hooks: hooks}

	raw, err := engine.Get(ctx, kvengine.CFMeta, checkpointKey(tag))
	if spokerr.Is(err, spokerr.NotFound) {
		return sc, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) != 8 {
		return nil, spokerr.New(spokerr.CorruptID, "sequence checkpoint is not 8 bytes")
	}
	checkpoint := binary.BigEndian.Uint64(raw)
	sc.counter.Store(checkpoint + checkpointInterval - 1)
	return sc, nil
}

// Next allocates the next sequence value, persisting a checkpoint
// every checkpointInterval allocations and firing telemetry once the
// counter crosses 50% of its capacity or is exhausted.
func (sc *sequenceCounter) Next(ctx context.Context) (uint64, error) {
	for {
		old := sc.counter.Load()
		next := old + 1
		if next >= sequenceCapacity {
			sc.hooks.SequenceOverflow(sc.tag)
			return 0, spokerr.New(spokerr.SequenceOverflow, sc.tag.String()+" sequence counter exhausted")
		}
		if !sc.counter.CompareAndSwap(old, next) {
			continue
		}

		if next%checkpointInterval == 0 {
			if err := sc.persistCheckpoint(ctx, next); err != nil {
				return 0, err
			}
		}
		if next == sequenceCapacity/2 && sc.warned.CompareAndSwap(false, true) {
			sc.hooks.SequenceWarning(sc.tag, next, sequenceCapacity)
		}
		return next, nil
	}
}

func (sc *sequenceCounter) persistCheckpoint(ctx context.Context, value uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return sc.engine.Put(ctx, kvengine.CFMeta, checkpointKey(sc.tag), buf[:])
}
