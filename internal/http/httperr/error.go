package httperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorBody is the standard error document returned to inbound callers.
type ErrorBody struct {
	Title   string         `json:"title"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeUpstreamTLS         = "UPSTREAM_TLS"
	CodeUpstreamCircuitOpen = "UPSTREAM_CIRCUIT_OPEN"
	CodeUpstreamError       = "UPSTREAM_ERROR"
)

// Titles
const (
	TitleUpstreamFailed = "Upstream call failed"
	TitleInternal       = "Internal Server Error"
)

// Error is an application error a handler can return to control the
// response. Err is logged but never rendered.
type Error struct {
	Status  int
	Code    string
	Title   string
	Details map[string]any
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %s: %v", e.Status, e.Code, e.Title, e.Err)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Title)
}

// Unwrap implements error unwrapping
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given status, code and title
func New(status int, code, title string) *Error {
	return &Error{Status: status, Code: code, Title: title}
}

// Wrap creates an Error carrying an underlying cause
func Wrap(status int, code, title string, err error) *Error {
	return &Error{Status: status, Code: code, Title: title, Err: err}
}

// WithDetail returns e with an additional detail entry
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// NotFound returns a 404 error
func NotFound(title string) *Error {
	return New(http.StatusNotFound, CodeNotFound, title)
}

// BadRequest returns a 400 error
func BadRequest(title string) *Error {
	return New(http.StatusBadRequest, CodeBadRequest, title)
}

// Unauthorized returns a 401 error
func Unauthorized(title string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, title)
}

// Forbidden returns a 403 error
func Forbidden(title string) *Error {
	return New(http.StatusForbidden, CodeForbidden, title)
}

// AsError returns the *Error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
