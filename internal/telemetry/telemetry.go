// Package telemetry defines the hook surface the storage core uses to
// report exhaustion warnings and integrity findings. Actual telemetry
// emission (metrics export, alerting) is a concern of the transaction
// coordinator and higher layers, out of scope here; this package only
// gives the core somewhere to call, with a default that logs the way
// the rest of this codebase's ancestor logs — via the standard "log"
// package.
package telemetry

import (
	"log"

	"github.com/dustin/go-humanize"

	"github.com/spokdb/spok/pkg/ids"
)

// Hooks receives one-shot notifications from the dictionary and
// index. Implementations must not block the caller for long; they
// run on the same goroutine as the triggering operation.
type Hooks interface {
	// SequenceWarning fires once per counter when it crosses 50% of
	// its per-type capacity.
	SequenceWarning(tag ids.Tag, used, capacity uint64)

	// SequenceOverflow fires every time an allocation is rejected
	// because a counter is exhausted.
	SequenceOverflow(tag ids.Tag)

	// CorruptID fires when an allocated-looking ID has no mirror
	// entry in id2str, or fails its checksum on read.
	CorruptID(id uint64, cause error)

	// InvalidKey fires when a predicate-universe marker read back
	// while opening the index is not the expected 9 bytes. A stored
	// index key that does not decode to 24 bytes during a lookup is
	// returned to the caller as an invalid_key error and does not
	// fire this hook.
	InvalidKey(columnFamily string, key []byte, cause error)
}

// stdLogger is the default Hooks implementation, logging at error
// severity via the standard library logger.
type stdLogger struct {
	log *log.Logger
}

// NewStdLogger returns Hooks that write to logger, or to log.Default()
// if logger is nil.
func NewStdLogger(logger *log.Logger) Hooks {
	if logger == nil {
		logger = log.Default()
	}
	return &stdLogger{log: logger}
}

func (s *stdLogger) SequenceWarning(tag ids.Tag, used, capacity uint64) {
	pct := float64(used) / float64(capacity) * 100
	s.log.Printf("dictionary: %s sequence counter at %.0f%% capacity (%s / %s)",
		tag, pct, humanize.Comma(int64(used)), humanize.Comma(int64(capacity)))
}

func (s *stdLogger) SequenceOverflow(tag ids.Tag) {
	s.log.Printf("dictionary: %s sequence counter exhausted, further allocations will fail", tag)
}

func (s *stdLogger) CorruptID(id uint64, cause error) {
	s.log.Printf("dictionary: corrupt id %d: %v", id, cause)
}

func (s *stdLogger) InvalidKey(columnFamily string, key []byte, cause error) {
	s.log.Printf("index: invalid key in %s (%x): %v", columnFamily, key, cause)
}

// Nop discards every notification. Useful in tests.
var Nop Hooks = nopHooks{}

type nopHooks struct{}

func (nopHooks) SequenceWarning(ids.Tag, uint64, uint64)     {}
func (nopHooks) SequenceOverflow(ids.Tag)                    {}
func (nopHooks) CorruptID(uint64, error)                     {}
func (nopHooks) InvalidKey(string, []byte, error)            {}
