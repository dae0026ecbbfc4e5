// Package apperr defines the typed errors that cross job, store and HTTP boundaries.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidState = "INVALID_STATE"
	CodeDuplicate    = "DUPLICATE"
	CodeUpstream     = "UPSTREAM"
	CodeInternal     = "INTERNAL"
)

// Error represents a structured application error
type Error struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"-"`
	Err       error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code so errors.Is(err, apperr.ErrNotFound) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// HTTPStatus maps the code to a response status
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState:
		return http.StatusUnprocessableEntity
	case CodeDuplicate:
		return http.StatusConflict
	case CodeUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Sentinels for errors.Is comparisons
var (
	ErrNotFound     = &Error{Code: CodeNotFound}
	ErrInvalidState = &Error{Code: CodeInvalidState}
	ErrDuplicate    = &Error{Code: CodeDuplicate}
	ErrUpstream     = &Error{Code: CodeUpstream}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidState is a precondition violation that retrying cannot resolve
func InvalidState(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Duplicate(format string, args ...any) *Error {
	return &Error{Code: CodeDuplicate, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a transient failure of the LLM or search service
func Upstream(err error, message string) *Error {
	return &Error{Code: CodeUpstream, Message: message, Err: err, Retryable: true}
}

func Internal(err error, message string) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err, Retryable: true}
}

// IsRetryable reports whether a job failing with err should be attempted again.
// Unknown errors are retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return true
}

// Is reports whether err carries the given code
func Is(err error, code string) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// Detail returns a detail value of the first *Error in the chain
func Detail(err error, key string) (any, bool) {
	var ae *Error
	if !errors.As(err, &ae) || ae.Details == nil {
		return nil, false
	}
	v, ok := ae.Details[key]
	return v, ok
}
