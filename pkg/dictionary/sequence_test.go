package dictionary

import (
	"context"
	"testing"

	"github.com/spokdb/spok/internal/kvengine"
	"github.com/spokdb/spok/internal/telemetry"
	"github.com/spokdb/spok/pkg/ids"
	"github.com/spokdb/spok/pkg/spokerr"
)

// TestSequenceOverflowAtSpecCeiling drives a counter to within one
// allocation of 2^59-1 and asserts sequence_overflow fires exactly at
// that ceiling, not at 2^60-1.
func TestSequenceOverflowAtSpecCeiling(t *testing.T) {
	ctx := context.Background()
	e, err := kvengine.Open(t.TempDir(), kvengine.Options{})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	sc := &sequenceCounter{tag: ids.TagURI, engine: e, hooks: telemetry.Nop}
	sc.counter.Store(sequenceCapacity - 2)

	got, err := sc.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	want := sequenceCapacity - 1
	if got != want {
		t.Fatalf("Next = %d, want %d (spec ceiling 2^59-1)", got, want)
	}

	_, err = sc.Next(ctx)
	if !spokerr.Is(err, spokerr.SequenceOverflow) {
		t.Fatalf("Next past ceiling = %v, want sequence_overflow", err)
	}
}
