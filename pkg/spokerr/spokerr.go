// Package spokerr defines the structured error vocabulary shared by
// every storage-core component (KV engine, dictionary, index).
//
// Every fallible operation in the core returns either a normal result
// or an *Error carrying a machine-readable Kind plus, where relevant,
// a wrapped cause. No exceptional control flow crosses a component
// boundary.
package spokerr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a failure. Callers should compare
// against these constants with errors.Is/errors.As rather than
// matching on error strings.
type Kind int

const (
	// Unknown covers causes that did not originate in this package.
	Unknown Kind = iota

	// Validation errors, raised on the term-encoding path before any
	// state change.
	TermTooLarge
	NullByteInURI
	InvalidUTF8

	// Domain/range errors from the inline numeric codecs.
	OutOfRange
	NotAnInteger
	NotADecimal
	NotADateTime

	// Exhaustion.
	SequenceOverflow

	// Integrity.
	CorruptID
	InvalidKey

	// Engine / lifecycle.
	NotFound
	AlreadyClosed
	Engine
)

func (k Kind) String() string {
	switch k {
	case TermTooLarge:
		return "term_too_large"
	case NullByteInURI:
		return "null_byte_in_uri"
	case InvalidUTF8:
		return "invalid_utf8"
	case OutOfRange:
		return "out_of_range"
	case NotAnInteger:
		return "not_an_integer"
	case NotADecimal:
		return "not_a_decimal"
	case NotADateTime:
		return "not_a_datetime"
	case SequenceOverflow:
		return "sequence_overflow"
	case CorruptID:
		return "corrupt_id"
	case InvalidKey:
		return "invalid_key"
	case NotFound:
		return "not_found"
	case AlreadyClosed:
		return "already_closed"
	case Engine:
		return "engine"
	default:
		return "unknown"
	}
}

// Error is the structured error type returned by every core
// operation that can fail for a reason a caller may want to branch
// on.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	if e.msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.msg)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is(err, spokerr.New(kind, "")) match any *Error of
// the same Kind, independent of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New constructs a structured error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

// Wrap constructs a structured error that wraps cause, preserving its
// identity for errors.Is/errors.As while attaching a machine-readable
// Kind.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// Of reports the Kind of err, or Unknown if err is not (or does not
// wrap) a *Error.
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return Of(err) == kind
}

// sentinels for errors.Is comparisons against a bare Kind, e.g.
// errors.Is(err, spokerr.ErrNotFound).
var (
	ErrNotFound      = New(NotFound, "")
	ErrAlreadyClosed = New(AlreadyClosed, "")
)
