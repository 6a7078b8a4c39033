// Package apperr holds the typed errors handlers return; the central fiber
// error handler turns them into status codes and the JSON envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeBadRequest       = "BAD_REQUEST"
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeGone             = "GONE"
	CodeTooLarge         = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMedia = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
)

type Error struct {
	Code    string
	Status  int
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg}
}

// Wrap keeps err as the cause; only msg is shown to clients.
func Wrap(err error, status int, code, msg string) *Error {
	return &Error{Code: code, Status: status, Message: msg, Err: err}
}

func BadRequest(msg string) *Error { return New(http.StatusBadRequest, CodeBadRequest, msg) }
func Validation(msg string) *Error { return New(http.StatusBadRequest, CodeValidation, msg) }
func Unauthorized(msg string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, msg)
}
func Forbidden(msg string) *Error { return New(http.StatusForbidden, CodeForbidden, msg) }
func NotFound(msg string) *Error  { return New(http.StatusNotFound, CodeNotFound, msg) }
func Conflict(msg string) *Error  { return New(http.StatusConflict, CodeConflict, msg) }
func Gone(msg string) *Error      { return New(http.StatusGone, CodeGone, msg) }
func TooLarge(msg string) *Error {
	return New(http.StatusRequestEntityTooLarge, CodeTooLarge, msg)
}
func UnsupportedMedia(msg string) *Error {
	return New(http.StatusUnsupportedMediaType, CodeUnsupportedMedia, msg)
}
func TooManyRequests(msg string) *Error {
	return New(http.StatusTooManyRequests, CodeRateLimited, msg)
}
func Internal(err error) *Error {
	return Wrap(err, http.StatusInternalServerError, CodeInternal, "Something went wrong. Please try again.")
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CodeForStatus names a bare HTTP status for the envelope.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusGone:
		return CodeGone
	case http.StatusRequestEntityTooLarge:
		return CodeTooLarge
	case http.StatusUnsupportedMediaType:
		return CodeUnsupportedMedia
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	}
	if status >= 500 {
		return CodeInternal
	}
	return CodeBadRequest
}

// Detail is the inner object of the error envelope.
type Detail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

// Body is the JSON envelope {"error":{"code","message"}}.
type Body struct {
	Error Detail `json:"error"`
}

func (e *Error) Body() Body {
	return Body{Error: Detail{Code: e.Code, Message: e.Message, Fields: e.Fields}}
}

// ValidationFields is a VALIDATION_ERROR listing per-field messages.
func ValidationFields(msg string, fields []string) *Error {
	e := Validation(msg)
	e.Fields = fields
	return e
}
