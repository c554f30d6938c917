// Package apperr classifies errors raised by the discussion orchestrator
// into a small stable taxonomy, each class carrying the HTTP status and
// websocket close code it projects to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one of the six error classes.
type Code string

const (
	// CodeNotFound: Discussion, Participant, or Message id unknown.
	CodeNotFound Code = "NOT_FOUND"
	// CodeInvalidState: operation incompatible with current status.
	CodeInvalidState Code = "INVALID_STATE"
	// CodePolicyViolation: rate limit, connection cap, turn ownership,
	// participant cap, or strategy-config validation failure.
	CodePolicyViolation Code = "POLICY_VIOLATION"
	// CodeAuthFailure: missing or invalid credential.
	CodeAuthFailure Code = "AUTH_FAILURE"
	// CodeTransientDependency: Repository/Bus temporary failure.
	CodeTransientDependency Code = "TRANSIENT_DEPENDENCY"
	// CodeFatal: unexpected exception; state left unchanged.
	CodeFatal Code = "FATAL"
)

// CloseNone marks an error class that never closes a websocket connection.
const CloseNone = 0

// httpStatus and closeCode give each class its external projection.
var httpStatus = map[Code]int{
	CodeNotFound:            http.StatusNotFound,
	CodeInvalidState:        http.StatusConflict,
	CodePolicyViolation:     http.StatusTooManyRequests,
	CodeAuthFailure:         http.StatusUnauthorized,
	CodeTransientDependency: http.StatusServiceUnavailable,
	CodeFatal:               http.StatusInternalServerError,
}

// Close codes per RFC 6455 / spec §6: 1008 policy, 1011 server error.
var closeCode = map[Code]int{
	CodeNotFound:            CloseNone,
	CodeInvalidState:        CloseNone,
	CodePolicyViolation:     1008,
	CodeAuthFailure:         1008,
	CodeTransientDependency: CloseNone,
	CodeFatal:               1011,
}

// Error is the application-level error type. Message is the short, stable
// human-readable message surfaced to callers; Err is the wrapped cause (may
// be nil).
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the HTTP status code this error projects to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// CloseCode returns the websocket close code this error projects to on the
// fan-out layer, or CloseNone if the error does not close the connection.
func (e *Error) CloseCode() int {
	return closeCode[e.Code]
}

func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

func InvalidState(message string) *Error {
	return &Error{Code: CodeInvalidState, Message: message}
}

func PolicyViolation(message string) *Error {
	return &Error{Code: CodePolicyViolation, Message: message}
}

func AuthFailure(message string) *Error {
	return &Error{Code: CodeAuthFailure, Message: message}
}

func TransientDependency(message string, err error) *Error {
	return &Error{Code: CodeTransientDependency, Message: message, Err: err}
}

func Fatal(message string, err error) *Error {
	return &Error{Code: CodeFatal, Message: message, Err: err}
}

// Wrap classifies an arbitrary error as Fatal unless it already carries a
// classification.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Fatal(message, err)
}

// Is reports whether err (or something it wraps) carries the given code.
func Is(err error, code Code) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
