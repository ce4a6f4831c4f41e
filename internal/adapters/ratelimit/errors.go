package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Platform adapters wrap failures in *Error with one of these as Kind.
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrServerError  = errors.New("transient server error")
	ErrValidation   = errors.New("validation rejected")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrClientError  = errors.New("client error")
)

// Error is a classified platform failure.
type Error struct {
	Op     string
	Status int
	Kind   error
	// ResetAt is the absolute time the rate limit window resets, when known.
	ResetAt time.Time
	// RetryAfter is the server requested wait, when given.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}

// KindLabel names the kind of err for logs and metrics.
func KindLabel(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServerError):
		return "server_error"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrClientError):
		return "client_error"
	default:
		return "unclassified"
	}
}
