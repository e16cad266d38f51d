// Package apperr defines the coded error taxonomy shared by every component
// of the billing core.
//
// Handlers return *Error values (possibly wrapped); the command gateway
// renders them verbatim through Error(). Codes are stable strings so that a
// caller can branch on them without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Code categorizes an error.
type Code string

const (
	// DatabaseUnavailable means the store is detached (e.g. mid-restore).
	// Callers should retry.
	DatabaseUnavailable Code = "DATABASE_UNAVAILABLE"

	// SchemaError means the store could not be opened or migrated.
	SchemaError Code = "SCHEMA_ERROR"

	// ConstraintViolation is a uniqueness/integrity failure that has no more
	// specific code.
	ConstraintViolation Code = "CONSTRAINT_VIOLATION"

	// ItemNumberInUse means an explicit item_no collides with another product.
	ItemNumberInUse Code = "ITEM_NUMBER_IN_USE"

	// InvalidInput means a required field is missing or malformed.
	InvalidInput Code = "INVALID_INPUT"

	// NotFound covers unknown routes and unknown ids.
	NotFound Code = "NOT_FOUND"

	// AllocationExhausted means automatic item_no allocation kept colliding.
	AllocationExhausted Code = "ALLOCATION_EXHAUSTED"

	// ItemNumberRangeExceeded means the next automatic item_no is above 9999.
	ItemNumberRangeExceeded Code = "ITEM_NUMBER_RANGE_EXCEEDED"

	// NoValidItems means a bill request had no usable line items.
	NoValidItems Code = "NO_VALID_ITEMS"

	BackupFailed  Code = "BACKUP_FAILED"
	RestoreFailed Code = "RESTORE_FAILED"
	NoBackupFound Code = "NO_BACKUP_FOUND"

	// PrintFailed covers helper start failures, non-zero exits and timeouts.
	PrintFailed Code = "PRINT_FAILED"
)

// Error is a coded, human-readable error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error without an underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of the outermost *Error in err's chain, or "" when
// err carries no code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Retryable reports whether the caller may retry the same call later.
func Retryable(err error) bool {
	return Is(err, DatabaseUnavailable)
}
