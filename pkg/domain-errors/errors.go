// Package domerrors defines the coded errors services return to transport.
//
// Stores return sentinel errors (pkg/platform/sentinel) describing
// infrastructure facts; services translate those facts into domain errors
// carrying a Code the HTTP layer can map to a status without inspecting
// message text.
package domerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport mapping and tests.
type Code string

const (
	// CodeInvalidInput marks user-correctable validation failures.
	CodeInvalidInput Code = "invalid_input"
	// CodeUnauthorized marks missing or unusable credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks ownership or authorization violations.
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks an absent referenced entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks lost optimistic-concurrency races and uniqueness clashes.
	CodeConflict Code = "conflict"
	// CodeImmutableState marks mutation attempts on a delivered message.
	CodeImmutableState Code = "immutable_state"
	// CodeIntegrity marks ciphertext tampering or decryption failure.
	CodeIntegrity Code = "integrity"
	// CodeTimeout marks a persistence operation that exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeInternal marks everything the caller cannot correct.
	CodeInternal Code = "internal"
)

// Error is the single concrete domain error type.
type Error struct {
	Code    Code
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// Is lets errors.Is match on code equality so sentinel-style comparisons
// (`errors.Is(err, dErrors.New(dErrors.CodeUnauthorized, ...))`) work in tests.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New builds a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a cause while keeping the code visible to HasCode.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, wrapped: cause}
}

// WrapStore classifies a store failure: an exceeded deadline becomes
// CodeTimeout so transport reports 504 instead of a generic 500, anything
// else stays CodeInternal.
func WrapStore(message string, cause error) *Error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, message, cause)
	}
	return Wrap(CodeInternal, message, cause)
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var domErr *Error
	if errors.As(err, &domErr) {
		return domErr.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var domErr *Error
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the status the transport layer writes.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeImmutableState:
		return http.StatusConflict
	case CodeIntegrity:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
