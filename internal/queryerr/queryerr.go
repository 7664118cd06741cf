package queryerr

import (
	"github.com/cockroachdb/errors"
	"github.com/gofiber/fiber/v2"
)

// Code classifies query errors so the command layer can map them to the
// right client-visible condition.
type Code int

const (
	CodeGeneric Code = iota
	// CodeBadArgs covers malformed arguments: wrong arity, bad COUNT
	// values, unparseable cursor ids.
	CodeBadArgs
	// CodeNoIndex is returned when the named index does not exist.
	CodeNoIndex
	// CodeIndexUnavailable means the backing index context could not be
	// associated or revalidated (e.g. the index was dropped between
	// cursor round-trips).
	CodeIndexUnavailable
	// CodeCursorNotFound covers unknown, busy, or destroyed cursor ids.
	CodeCursorNotFound
	// CodeIteration marks a result processor failing mid-pull.
	CodeIteration
)

// String returns the symbolic name used in error envelopes.
func (c Code) String() string {
	switch c {
	case CodeBadArgs:
		return "bad_args"
	case CodeNoIndex:
		return "no_index"
	case CodeIndexUnavailable:
		return "index_unavailable"
	case CodeCursorNotFound:
		return "cursor_not_found"
	case CodeIteration:
		return "iteration_error"
	default:
		return "generic"
	}
}

// Error is a coded query error.
type Error struct {
	code Code
	err  error
}

func New(code Code, msg string) *Error {
	return &Error{code: code, err: errors.New(msg)}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, err: errors.Newf(format, args...)}
}

// Wrap attaches a code to an existing error.
func Wrap(code Code, err error, msg string) *Error {
	return &Error{code: code, err: errors.Wrap(err, msg)}
}

func (e *Error) Error() string { return e.err.Error() }
func (e *Error) Code() Code    { return e.code }
func (e *Error) Unwrap() error { return e.err }

// CodeOf extracts the code from an error chain, defaulting to CodeGeneric.
func CodeOf(err error) Code {
	var qe *Error
	if errors.As(err, &qe) {
		return qe.code
	}
	return CodeGeneric
}

// HTTPStatus maps an error code to the status the command surface replies
// with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeBadArgs:
		return fiber.StatusBadRequest
	case CodeNoIndex, CodeCursorNotFound:
		return fiber.StatusNotFound
	case CodeIndexUnavailable:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// Status is the mutable error context threaded through build, compile and
// execution. Only the first error is retained; later calls are ignored so
// the terminal error reported to the client is the root cause.
type Status struct {
	err *Error
}

// SetError records err if no error is held yet.
func (s *Status) SetError(code Code, err error) {
	if s.err != nil || err == nil {
		return
	}
	var qe *Error
	if errors.As(err, &qe) {
		s.err = qe
		return
	}
	s.err = &Error{code: code, err: err}
}

// Setf records a formatted error if no error is held yet.
func (s *Status) Setf(code Code, format string, args ...interface{}) {
	if s.err != nil {
		return
	}
	s.err = Newf(code, format, args...)
}

func (s *Status) HasError() bool { return s.err != nil }

// Err returns the held error, or nil.
func (s *Status) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

// Clear drops the held error, releasing the status for reuse.
func (s *Status) Clear() { s.err = nil }
