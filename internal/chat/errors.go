package chat

import (
	"errors"

	"versechat/internal/transport"
)

// ErrRequestInFlight rejects a send while another request is active.
var ErrRequestInFlight = errors.New("a request is already in flight")

// ErrUsageLimitReached rejects a send once the daily quota is spent.
var ErrUsageLimitReached = errors.New("daily message limit reached")

// FailureKind classifies a terminal failure for the UI.
type FailureKind string

const (
	FailureConnection  FailureKind = "connection_failed"
	FailureRateLimited FailureKind = "rate_limited"
	FailureUsageLimit  FailureKind = "usage_limit"
	FailureSafety      FailureKind = "safety"
	FailureTimedOut    FailureKind = "timed_out"
)

// Failure is the terminal outcome the UI renders. Cancellation never
// produces one.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// safetyNotice replaces the streaming placeholder when the backend rejects
// a request on content-policy grounds.
const safetyNotice = "This is a sensitive topic that deserves more care than I can offer here. " +
	"If you are struggling, please reach out to a pastor, counselor, or someone you trust. " +
	"You are not alone, and there are people ready to walk with you."

func failureFor(kind transport.ErrorKind) *Failure {
	switch kind {
	case transport.KindRateLimited:
		return &Failure{Kind: FailureRateLimited, Message: "Too many requests right now. Please wait a moment and try again."}
	case transport.KindSafety:
		return &Failure{Kind: FailureSafety, Message: safetyNotice}
	default:
		return &Failure{Kind: FailureConnection, Message: "Connection failed after multiple attempts. Please try again."}
	}
}
