// Package xerrors carries HTTP status, a machine-readable code and optional
// retry hints alongside a cause, so handlers can return one value and let
// WriteError render and log it.
package xerrors

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

type Error struct {
	StatusCode int
	Code       string
	Message    string
	Cause      error
	// RetryAfter is sent as Retry-After when positive (429 and 503).
	RetryAfter time.Duration
	// Reason is sent as X-RateLimit-Reason.
	Reason string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func Unauthorized(opts ...Option) *Error        { return newErr(http.StatusUnauthorized, opts) }
func BadRequest(opts ...Option) *Error          { return newErr(http.StatusBadRequest, opts) }
func NotFound(opts ...Option) *Error            { return newErr(http.StatusNotFound, opts) }
func RequestTooLarge(opts ...Option) *Error     { return newErr(http.StatusRequestEntityTooLarge, opts) }
func UnprocessableEntity(opts ...Option) *Error { return newErr(http.StatusUnprocessableEntity, opts) }
func TooManyRequests(opts ...Option) *Error     { return newErr(http.StatusTooManyRequests, opts) }
func Internal(opts ...Option) *Error            { return newErr(http.StatusInternalServerError, opts) }
func ServiceUnavailable(opts ...Option) *Error  { return newErr(http.StatusServiceUnavailable, opts) }

func newErr(status int, opts []Option) *Error {
	e := &Error{StatusCode: status, Message: strings.ToLower(http.StatusText(status))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type Option func(*Error)

func WithMessage(msg string) Option         { return func(e *Error) { e.Message = msg } }
func WithCode(code string) Option           { return func(e *Error) { e.Code = code } }
func WithCause(err error) Option            { return func(e *Error) { e.Cause = err } }
func WithRetryAfter(d time.Duration) Option { return func(e *Error) { e.RetryAfter = d } }
func WithReason(reason string) Option       { return func(e *Error) { e.Reason = reason } }

// As returns the first *Error in err's chain, or nil.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
