// Package gderr defines the error taxonomy shared by every GeoDesk layer:
// blob storage, the tile decoder, the matcher compiler, and the query
// executor. Every error carries a Code for programmatic handling plus
// structured details (byte offsets, paths, tokens) for diagnosis, and
// unwraps to its cause so errors.Is/errors.As keep working across layers.
package gderr

import "fmt"

// Code categorizes a GeoDesk error for programmatic handling.
type Code string

const (
	// Io covers underlying file/mmap failures. Never retried silently.
	Io Code = "IO"
	// Corrupt covers bad magic, bad CRC, malformed varints, out-of-range
	// offsets. Carries a byte location when known.
	Corrupt Code = "CORRUPT"
	// VersionMismatch covers a GOL major version this build does not support.
	VersionMismatch Code = "VERSION_MISMATCH"
	// LockConflict covers an exclusive writer lock held by another process.
	LockConflict Code = "LOCK_CONFLICT"
	// BadExpression covers a matcher compile error; carries source offset
	// and the offending token.
	BadExpression Code = "BAD_EXPRESSION"
	// StaleTile is informational: the tile index says MISSING_OR_STALE.
	// The query skips the tile; this code is not normally surfaced to a
	// caller as an error, but is available for diagnostics.
	StaleTile Code = "STALE_TILE"
	// TooManyResults is returned by FeatureSet.One when more than one
	// result was produced.
	TooManyResults Code = "TOO_MANY_RESULTS"
	// RecursionCycle covers a relation-member cycle caught by the
	// per-traversal recursion guard.
	RecursionCycle Code = "RECURSION_CYCLE"
	// NotFound is returned when a lookup (FeatureSet.One, a by-ID
	// accessor) yields no match.
	NotFound Code = "NOT_FOUND"
	// Internal marks a package-private control value (e.g. an iteration
	// sentinel) that should never escape to a caller.
	Internal Code = "INTERNAL"
)

// Error is the concrete error type for all GeoDesk failures.
type Error struct {
	code    Code
	message string
	cause   error
	details map[string]any
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap creates an Error that wraps cause, categorized under code.
func Wrap(cause error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// WithDetail attaches a key/value pair of diagnostic context and returns
// the receiver for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.details == nil {
		e.details = make(map[string]any, 4)
	}
	e.details[key] = value
	return e
}

// WithOffset is shorthand for WithDetail("offset", off); used throughout
// the blob store and tile decoder where a byte location is known.
func (e *Error) WithOffset(off int64) *Error {
	return e.WithDetail("offset", off)
}

// WithPath is shorthand for WithDetail("path", path).
func (e *Error) WithPath(path string) *Error {
	return e.WithDetail("path", path)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap enables errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the error's category.
func (e *Error) Code() Code { return e.code }

// Details returns the structured diagnostic context attached to e.
// The returned map is shared with the receiver; callers must not mutate it.
func (e *Error) Details() map[string]any { return e.details }

// Is reports whether target is an *Error with the same Code, so that
// errors.Is(err, gderr.New(gderr.Corrupt, "")) style sentinel checks work
// without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	for err != nil {
		if ge, ok := err.(*Error); ok {
			e = ge
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return "", false
	}
	return e.code, true
}
