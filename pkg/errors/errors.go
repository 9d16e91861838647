// Package errors holds the error values the local API renders. Each carries a stable code,
// a client-facing message and the HTTP status it maps to; the internal cause is logged but
// never serialised.
package errors

import (
	"errors"
	"net/http"
)

type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return e.Message + ": " + e.Internal.Error()
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is compares codes, so a decorated copy still matches its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && e != nil && t != nil && e.Code == t.Code
}

// WithInternal returns a copy carrying cause.
func (e *AppError) WithInternal(cause error) *AppError {
	return e.derive(func(c *AppError) { c.Internal = cause })
}

// WithMessage returns a copy with a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.derive(func(c *AppError) { c.Message = message })
}

// WithDetails returns a copy that renders details alongside the message.
func (e *AppError) WithDetails(details any) *AppError {
	return e.derive(func(c *AppError) { c.Details = details })
}

func (e *AppError) derive(edit func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	edit(&c)
	return &c
}

// New declares an error kind.
func New(code, message string, status int) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

var (
	ErrBadRequest     = New("BAD_REQUEST", "Invalid request", http.StatusBadRequest)
	ErrNotFound       = New("NOT_FOUND", "Resource not found", http.StatusNotFound)
	ErrInternalServer = New("INTERNAL_SERVER_ERROR", "Internal server error", http.StatusInternalServerError)

	// ErrOffline means the remote API is unreachable and nothing local can answer instead.
	ErrOffline = New("OFFLINE", "Remote service unavailable while offline", http.StatusServiceUnavailable)

	// ErrNotInitialised is returned by the local store before Init succeeds or after Close.
	ErrNotInitialised = New("STORE_NOT_INITIALISED", "Local store is not initialised", http.StatusServiceUnavailable)
)

// Wrap reports err as an internal failure described by message.
func Wrap(err error, message string) *AppError {
	return ErrInternalServer.WithMessage(message).WithInternal(err)
}

// FromError returns the AppError in err's chain, or wraps err as an internal failure.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}

func NewBadRequest(message string) *AppError {
	return ErrBadRequest.WithMessage(message)
}
