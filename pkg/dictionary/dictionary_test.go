package dictionary

import (
	"context"
	"testing"

	"github.com/spokdb/spok/internal/kvengine"
	"github.com/spokdb/spok/internal/telemetry"
	"github.com/spokdb/spok/pkg/spokerr"
	"github.com/spokdb/spok/pkg/term"
)

// countingEngine wraps an Engine to count WriteBatch calls, so a test
// can assert a whole batch of new allocations commits in exactly one
// atomic write rather than one per term.
type countingEngine struct {
	kvengine.Engine
	batches int
}

func (c *countingEngine) WriteBatch(ctx context.Context, ops []kvengine.Op) error {
	c.batches++
	return c.Engine.WriteBatch(ctx, ops)
}

func openTestDictionary(t *testing.T) (*Dictionary, kvengine.Engine) {
	t.Helper()
	e, err := kvengine.Open(t.TempDir(), kvengine.Options{})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })

	d, err := Open(context.Background(), e, telemetry.Nop)
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}
	t.Cleanup(d.Close)
	return d, e
}

func TestInlineIntegerNeverAllocates(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	lit := term.NewTypedLiteral("42", term.XSDInteger)
	id, err := d.GetOrCreateID(ctx, lit)
	if err != nil {
		t.Fatalf("GetOrCreateID: %v", err)
	}
	if tag, _ := decodeTagOf(id); tag != 4 {
		t.Fatalf("integer literal tag = %d, want inline tag 4 (not a dictionary allocation)", tag)
	}

	got, err := d.LookupTerm(ctx, id)
	if err != nil {
		t.Fatalf("LookupTerm: %v", err)
	}
	gotLit, ok := got.(term.Literal)
	if !ok || gotLit.Lexical != "42" {
		t.Fatalf("LookupTerm = %#v, want lexical 42", got)
	}
}

func TestURIAllocationIsStableAndMirrored(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	uri := term.NewIRI("http://example.org/alice")
	id1, err := d.GetOrCreateID(ctx, uri)
	if err != nil {
		t.Fatalf("GetOrCreateID: %v", err)
	}
	id2, err := d.GetOrCreateID(ctx, uri)
	if err != nil {
		t.Fatalf("GetOrCreateID (repeat): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("re-allocating the same URI produced a different ID: %d vs %d", id1, id2)
	}

	got, err := d.LookupTerm(ctx, id1)
	if err != nil {
		t.Fatalf("LookupTerm: %v", err)
	}
	gotURI, ok := got.(term.IRI)
	if !ok || !gotURI.Equal(uri) {
		t.Fatalf("LookupTerm = %#v, want %#v", got, uri)
	}
}

func TestLookupIDMissingReturnsNotOK(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	_, ok, err := d.LookupID(ctx, term.NewIRI("http://example.org/never-inserted"))
	if err != nil {
		t.Fatalf("LookupID: %v", err)
	}
	if ok {
		t.Fatal("LookupID reported ok=true for a term never allocated")
	}
}

func TestConcurrentGetOrCreateConvergesOnOneID(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	uri := term.NewIRI("http://example.org/race")
	const n = 32
	ids := make([]uint64, n)
	errs := make([]error, n)
	done := make(chan int, n)

	for i := 0; i < n; i++ {
		go func(idx int) {
			ids[idx], errs[idx] = d.GetOrCreateID(ctx, uri)
			done <- idx
		}(i)
	}
	for i := 0; i < n; i++ {
		<-done
	}

	first := ids[0]
	for i, id := range ids {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: %v", i, errs[i])
		}
		if id != first {
			t.Fatalf("goroutine %d got id %d, want %d (race allocated more than one ID)", i, id, first)
		}
	}
}

func TestBlankNodeAndLiteralGetDistinctSequences(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	blankID, err := d.GetOrCreateID(ctx, term.NewBlankNode("b0"))
	if err != nil {
		t.Fatal(err)
	}
	litID, err := d.GetOrCreateID(ctx, term.NewLiteral("hello"))
	if err != nil {
		t.Fatal(err)
	}

	if got, _ := decodeTagOf(blankID); got != 2 {
		t.Errorf("blank node tag = %d, want 2", got)
	}
	if got, _ := decodeTagOf(litID); got != 3 {
		t.Errorf("literal tag = %d, want 3", got)
	}
}

func decodeTagOf(id uint64) (byte, uint64) {
	return byte(id >> 60), id & ((uint64(1) << 60) - 1)
}

func TestValidateTermRejectsNullByteURI(t *testing.T) {
	err := ValidateTerm(term.NewIRI("http://example.org/\x00bad"))
	if err == nil {
		t.Fatal("ValidateTerm accepted a URI containing a null byte")
	}
}

func TestSequenceRestartAppliesSafetyMargin(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	e1, err := kvengine.Open(dir, kvengine.Options{})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	d1, err := Open(ctx, e1, telemetry.Nop)
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}
	for i := 0; i < 1000; i++ {
		uri := term.NewIRI(uriFor(i))
		if _, err := d1.GetOrCreateID(ctx, uri); err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
	}
	d1.Close()
	if err := e1.Close(); err != nil {
		t.Fatalf("close engine: %v", err)
	}

	e2, err := kvengine.Open(dir, kvengine.Options{})
	if err != nil {
		t.Fatalf("reopen engine: %v", err)
	}
	defer e2.Close()
	d2, err := Open(ctx, e2, telemetry.Nop)
	if err != nil {
		t.Fatalf("reopen dictionary: %v", err)
	}
	defer d2.Close()

	id, err := d2.GetOrCreateID(ctx, term.NewIRI("http://example.org/after-restart"))
	if err != nil {
		t.Fatalf("allocate after restart: %v", err)
	}
	_, seq := decodeTagOf(id)
	if seq < 2000 {
		t.Fatalf("post-restart sequence = %d, want >= 2000 (safety margin applied)", seq)
	}
}

func TestGetOrCreateIDsPreservesOrderAndBatchesNewAllocations(t *testing.T) {
	ctx := context.Background()
	e, err := kvengine.Open(t.TempDir(), kvengine.Options{})
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	ce := &countingEngine{Engine: e}

	d, err := Open(ctx, ce, telemetry.Nop)
	if err != nil {
		t.Fatalf("open dictionary: %v", err)
	}
	t.Cleanup(d.Close)

	existing := term.NewIRI("http://example.org/existing")
	if _, err := d.GetOrCreateID(ctx, existing); err != nil {
		t.Fatalf("seed existing: %v", err)
	}
	before := ce.batches

	inlineLit := term.NewTypedLiteral("7", term.XSDInteger)
	newA := term.NewIRI("http://example.org/new-a")
	newB := term.NewIRI("http://example.org/new-b")
	terms := []term.Term{newA, existing, newB, inlineLit}

	ids, err := d.GetOrCreateIDs(ctx, terms)
	if err != nil {
		t.Fatalf("GetOrCreateIDs: %v", err)
	}

	if got := ce.batches - before; got != 1 {
		t.Fatalf("GetOrCreateIDs issued %d WriteBatch calls for a batch with 2 new terms, want exactly 1", got)
	}

	existingID, _, err := d.LookupID(ctx, existing)
	if err != nil {
		t.Fatalf("LookupID existing: %v", err)
	}
	if ids[1] != existingID {
		t.Fatalf("order not preserved: ids[1] = %d, want %d (existing term's id)", ids[1], existingID)
	}

	wantInline, ok := inlineEncode(inlineLit)
	if !ok || ids[3] != wantInline {
		t.Fatalf("order not preserved: ids[3] = %d, want inline id %d", ids[3], wantInline)
	}

	if ids[0] == 0 || ids[2] == 0 || ids[0] == ids[2] {
		t.Fatalf("new terms did not get distinct non-zero ids: %v", ids)
	}
	newAID, ok, err := d.LookupID(ctx, newA)
	if err != nil || !ok || newAID != ids[0] {
		t.Fatalf("new-a not durably resolvable after batch commit: id=%d ok=%v err=%v", newAID, ok, err)
	}
	newBID, ok, err := d.LookupID(ctx, newB)
	if err != nil || !ok || newBID != ids[2] {
		t.Fatalf("new-b not durably resolvable after batch commit: id=%d ok=%v err=%v", newBID, ok, err)
	}
}

func TestGetOrCreateIDsDedupesRepeatedNewTermWithinBatch(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	uri := term.NewIRI("http://example.org/repeat")
	ids, err := d.GetOrCreateIDs(ctx, []term.Term{uri, uri, uri})
	if err != nil {
		t.Fatalf("GetOrCreateIDs: %v", err)
	}
	if ids[0] != ids[1] || ids[1] != ids[2] {
		t.Fatalf("the same new term repeated within one batch got different ids: %v", ids)
	}
}

func TestGetOrCreateIDsShortCircuitsOnFatalError(t *testing.T) {
	ctx := context.Background()
	d, _ := openTestDictionary(t)

	ok1 := term.NewIRI("http://example.org/before-bad")
	bad := term.NewIRI("http://example.org/\x00bad")
	ok2 := term.NewIRI("http://example.org/after-bad")

	_, err := d.GetOrCreateIDs(ctx, []term.Term{ok1, bad, ok2})
	if !spokerr.Is(err, spokerr.NullByteInURI) {
		t.Fatalf("GetOrCreateIDs error = %v, want null_byte_in_uri", err)
	}

	if _, ok, _ := d.LookupID(ctx, ok1); ok {
		t.Fatal("term preceding the fatal error was allocated despite the short-circuit")
	}
	if _, ok, _ := d.LookupID(ctx, ok2); ok {
		t.Fatal("term following the fatal error was allocated despite the short-circuit")
	}
}

func uriFor(i int) string {
	return "http://example.org/n/" + itoa(i)
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
