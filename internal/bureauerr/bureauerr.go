// Package bureauerr defines the error taxonomy shared by every core
// component (spec §7): BadRequest, NotFound, Busy, ShuttingDown,
// StorageError, CorruptRecord, and Fatal. Errors are annotated with
// github.com/pkg/errors so a Cause() chain survives across component
// boundaries (WAL replay -> Engine, storage I/O -> Dispatcher), the way
// firefly-oss-flydb's internal/errors package attaches a category code to
// every returned error.
package bureauerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code categorizes an error for the purposes of client response mapping and
// escalation policy.
type Code int

const (
	// BadRequest: key/value length or character class violation. Returned
	// to the caller; no state change.
	BadRequest Code = iota
	// NotFound: logical miss; a normal Get outcome, not an error in the
	// conversational sense but modeled here so callers can use errors.Is.
	NotFound
	// Busy: a bounded queue is saturated; caller may retry.
	Busy
	// ShuttingDown: graceful shutdown in progress; caller may retry
	// elsewhere or abort.
	ShuttingDown
	// StorageError: underlying file I/O failure.
	StorageError
	// CorruptRecord: WAL replay encountered a bad CRC or malformed record.
	CorruptRecord
	// Fatal: unrecoverable; the process should initiate shutdown.
	Fatal
	// RecordTooLarge: a WAL record does not fit within a single page.
	RecordTooLarge
)

func (c Code) String() string {
	switch c {
	case BadRequest:
		return "BadRequest"
	case NotFound:
		return "NotFound"
	case Busy:
		return "Busy"
	case ShuttingDown:
		return "ShuttingDown"
	case StorageError:
		return "StorageError"
	case CorruptRecord:
		return "CorruptRecord"
	case Fatal:
		return "Fatal"
	case RecordTooLarge:
		return "RecordTooLarge"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-coded error that wraps an optional underlying cause.
type Error struct {
	Code Code
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.err }

// New creates a coded error with no underlying cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a taxonomy code and message, preserving the
// original error as the cause (via pkg/errors semantics).
func Wrap(code Code, err error, msg string) *Error {
	return &Error{Code: code, Msg: msg, err: errors.Wrap(err, msg)}
}

// Is reports whether err carries the given taxonomy code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the taxonomy code from err, or returns Fatal if err does
// not carry one (an unmodeled error is treated conservatively).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Fatal
}
