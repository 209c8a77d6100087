package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind separates retryable transport failures from terminal ones.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindRateLimited ErrorKind = "rate_limited"
	KindSafety      ErrorKind = "safety"
	KindCancelled   ErrorKind = "cancelled"
	KindInternal    ErrorKind = "internal"
)

// Error carries the failure kind alongside the provider error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transport %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("transport %s", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the engine may retry the request.
func (e *Error) Retryable() bool { return e.Kind == KindNetwork }

// KindOf extracts the error kind, defaulting to network for untyped errors
// so that plain connection failures stay retryable.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindNetwork
}

// Classify wraps a provider error with a kind derived from its shape.
// Providers do not expose a common error taxonomy, so this goes by status
// codes and well-known phrases in the error text.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindCancelled, Err: err}
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429"):
		return &Error{Kind: KindRateLimited, Err: err}
	case strings.Contains(msg, "content policy") ||
		strings.Contains(msg, "safety") ||
		strings.Contains(msg, "blocked"):
		return &Error{Kind: KindSafety, Err: err}
	case strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "401") ||
		strings.Contains(msg, "403"):
		return &Error{Kind: KindInternal, Err: err}
	default:
		return &Error{Kind: KindNetwork, Err: err}
	}
}
