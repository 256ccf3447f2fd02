package page

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes page cache errors.
type ErrorCode string

const (
	// ErrCodeFormat indicates a malformed URI or attribute encoding.
	ErrCodeFormat ErrorCode = "FORMAT"

	// ErrCodeNotFound indicates a missing, invalidated or unregistered entity.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeSchemaConflict indicates a type re-registered with a different schema.
	ErrCodeSchemaConflict ErrorCode = "SCHEMA_CONFLICT"

	// ErrCodeInvalidAttributes indicates attributes that do not satisfy the type schema.
	ErrCodeInvalidAttributes ErrorCode = "INVALID_ATTRIBUTES"

	// ErrCodeParentNotFound indicates the parent URI does not resolve to a valid page.
	ErrCodeParentNotFound ErrorCode = "PARENT_NOT_FOUND"

	// ErrCodeUnpinnedParent indicates the parent URI uses the latest sentinel.
	ErrCodeUnpinnedParent ErrorCode = "UNPINNED_PARENT"

	// ErrCodeDuplicateChild indicates the child URI is already stored.
	ErrCodeDuplicateChild ErrorCode = "DUPLICATE_CHILD"

	// ErrCodeSameType indicates parent and child share a type.
	ErrCodeSameType ErrorCode = "SAME_TYPE"

	// ErrCodeCycle indicates the parent link would close a cycle.
	ErrCodeCycle ErrorCode = "CYCLE"

	// ErrCodeDataCorruption indicates a stored row failed to decode or verify.
	ErrCodeDataCorruption ErrorCode = "DATA_CORRUPTION"

	// ErrCodeConflict indicates a lost race on concrete-URI uniqueness.
	ErrCodeConflict ErrorCode = "CONFLICT"

	// ErrCodeTimeout indicates the backing store deadline expired.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Error is the single error type surfaced by the page cache.
//
// Code identifies the category; URI names the page the error is about when
// one is known. Err carries the underlying cause (driver error, nested
// page error) and participates in errors.Is / errors.As chains.
type Error struct {
	Code    ErrorCode
	Message string
	URI     string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.URI != "" {
		msg = fmt.Sprintf("%s (uri=%s)", msg, e.URI)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error with the same code. This lets callers
// write errors.Is(err, &page.Error{Code: page.ErrCodeCycle}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates an Error with a formatted message.
func NewError(code ErrorCode, uri string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		URI:     uri,
	}
}

// WrapError creates an Error around an underlying cause.
func WrapError(code ErrorCode, uri string, message string, err error) *Error {
	return &Error{Code: code, Message: message, URI: uri, Err: err}
}

// HasCode reports whether any *Error in err's chain carries code.
// A DUPLICATE_CHILD raised by a lost insert race wraps a CONFLICT, so both
// codes match that error.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var pe *Error
		if !errors.As(err, &pe) {
			return false
		}
		if pe.Code == code {
			return true
		}
		err = pe.Err
	}
	return false
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsNotFound returns true if the error is a not-found error.
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNotFound)
}

// IsConflict returns true if the error is a retryable uniqueness conflict.
func IsConflict(err error) bool {
	return HasCode(err, ErrCodeConflict)
}

// IsTimeout returns true if the error is a backing store timeout.
func IsTimeout(err error) bool {
	return HasCode(err, ErrCodeTimeout)
}

// IsCorruption returns true if the error reports corrupt stored data.
func IsCorruption(err error) bool {
	return HasCode(err, ErrCodeDataCorruption)
}

// IsProvenance returns true for any provenance pre-check failure.
func IsProvenance(err error) bool {
	switch CodeOf(err) {
	case ErrCodeParentNotFound, ErrCodeUnpinnedParent, ErrCodeDuplicateChild,
		ErrCodeSameType, ErrCodeCycle:
		return true
	}
	return false
}
