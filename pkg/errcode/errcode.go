// Package errcode defines the error taxonomy for aqsync.
//
// Every component boundary returns a *Error carrying one of the codes
// below, so callers can route on the class of failure (retry, skip,
// abort) without string matching.
package errcode

import (
	"errors"
	"fmt"
)

// Code classifies an error for propagation decisions.
type Code int

const (
	UnknownError Code = iota

	// Fetch errors
	NetworkError  // transient remote failure, retryable
	NotFoundError // permanent, scope has no data

	// Normalizer errors
	FormatError // byte stream not parseable in the expected schema

	// Store errors
	ConstraintError // write rejected by referential/uniqueness rule
	TimeoutError    // suspension point exceeded its budget
	SchemaError     // provisioning or migration failure
	LedgerError     // sync_operations read/write failure

	// Orchestration errors
	PlanningError // invalid scope, no resolvable work units
	ConfigError   // invalid configuration
)

var codeNames = map[Code]string{
	UnknownError:    "unknown",
	NetworkError:    "network",
	NotFoundError:   "not_found",
	FormatError:     "format",
	ConstraintError: "constraint",
	TimeoutError:    "timeout",
	SchemaError:     "schema",
	LedgerError:     "ledger",
	PlanningError:   "planning",
	ConfigError:     "config",
}

// String returns the short name of the code, used in logs and ledger rows.
func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return "unknown"
}

// Error is a coded error wrapping its cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return codeNames[e.Code] + " error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

// Newf creates a coded error with a formatted message and no cause.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an existing error. Returns nil
// if err is nil.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Err: err}
}

// CodeOf extracts the code from an error chain, UnknownError if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return UnknownError
}

// Has reports whether the error chain carries the given code.
func Has(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case NetworkError, TimeoutError:
		return true
	}
	return false
}
