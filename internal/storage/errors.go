package storage

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes storage failures.
type ErrorCode string

const (
	// ErrCodeDuplicateKey indicates an insert hit an existing (eventId, instanceStartTime).
	ErrCodeDuplicateKey ErrorCode = "DUPLICATE_KEY"

	// ErrCodeNotFound indicates the addressed record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodePartialRead indicates a migration source returned fewer rows than it counted.
	ErrCodePartialRead ErrorCode = "PARTIAL_READ"

	// ErrCodeRowCountMismatch indicates the migration target count differs from the source count.
	ErrCodeRowCountMismatch ErrorCode = "ROW_COUNT_MISMATCH"

	// ErrCodeBackendUnavailable indicates a database could not be opened or reached.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"

	// ErrCodeVerificationFailed indicates a post-write re-read did not match the intended state.
	ErrCodeVerificationFailed ErrorCode = "VERIFICATION_FAILED"
)

// StoreError is the typed error returned by every storage backend.
type StoreError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying driver error, if any.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewError creates a StoreError.
func NewError(code ErrorCode, err error, format string, args ...any) *StoreError {
	return &StoreError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the code of the first StoreError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsDuplicateKey returns true if err is a duplicate key error.
func IsDuplicateKey(err error) bool { return CodeOf(err) == ErrCodeDuplicateKey }

// IsNotFound returns true if err is a not-found error.
func IsNotFound(err error) bool { return CodeOf(err) == ErrCodeNotFound }

// IsPartialRead returns true if err is a partial-read migration error.
func IsPartialRead(err error) bool { return CodeOf(err) == ErrCodePartialRead }

// IsRowCountMismatch returns true if err is a row-count mismatch migration error.
func IsRowCountMismatch(err error) bool { return CodeOf(err) == ErrCodeRowCountMismatch }

// IsBackendUnavailable returns true if err is an open/connect failure.
func IsBackendUnavailable(err error) bool { return CodeOf(err) == ErrCodeBackendUnavailable }

// IsVerificationFailed returns true if err is a failed post-write verification.
func IsVerificationFailed(err error) bool { return CodeOf(err) == ErrCodeVerificationFailed }
