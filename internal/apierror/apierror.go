// Package apierror defines the error taxonomy shared by the filter compiler,
// the repositories and the HTTP adapter.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by who caused it.
type Kind string

const (
	KindBadRequest    Kind = "BAD_REQUEST"
	KindNotFound      Kind = "NOT_FOUND"
	KindInternalError Kind = "INTERNAL_ERROR"
)

// CodeInternal is the code of every internal error.
const CodeInternal = "INTERNAL_ERROR"

// Message formats used across the query path.
const (
	MsgInvalidFilterFields  = "error parsing filter fields of filter [%s]"
	MsgInvalidProjection    = "error parsing projections of filter [%s]"
	MsgInvalidSortOrder     = "error parsing sort order of filter [%s]"
	MsgInvalidAggregation   = "invalid aggregation fields"
	MsgNoEntitiesFound      = "no entities found for filter [%s]"
	MsgMalformedRequest     = "malformed request for filter [%s]"
	MsgUnexpectedQueryError = "unexpected error processing query data [%s]"
	MsgEntityNotFound       = "entity with id [%v] not found"
)

// Sentinel values usable with errors.Is.
var (
	ErrBadRequest    = &Error{Kind: KindBadRequest}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrInternalError = &Error{Kind: KindInternalError}
)

// Error is a classified error with an optional cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test against the
// sentinel values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

// StatusCode returns the HTTP status for the error kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// BadRequest creates a caller-input error.
func BadRequest(code string, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotFound creates an error for a missing entity or empty required result.
func NotFound(code string, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure, keeping the cause attached.
func Internal(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternalError, Code: CodeInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// From returns the first *Error in err's chain, or an InternalError wrapping
// err when none is present.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err, "unexpected error")
}

// IsBadRequest reports whether err is classified as a bad request.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsNotFound reports whether err is classified as not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
