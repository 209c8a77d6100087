package transport

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"context canceled", context.Canceled, KindCancelled},
		{"wrapped cancel", fmt.Errorf("stream: %w", context.Canceled), KindCancelled},
		{"rate limit phrase", errors.New("provider: rate limit exceeded"), KindRateLimited},
		{"429 status", errors.New("unexpected status 429"), KindRateLimited},
		{"too many requests", errors.New("Too Many Requests"), KindRateLimited},
		{"content policy", errors.New("request violates content policy"), KindSafety},
		{"blocked", errors.New("response blocked by provider"), KindSafety},
		{"bad key", errors.New("invalid api key"), KindInternal},
		{"401", errors.New("status 401"), KindInternal},
		{"plain network", errors.New("connection reset by peer"), KindNetwork},
		{"unknown", errors.New("something odd"), KindNetwork},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			if got.Kind != tc.want {
				t.Fatalf("Classify(%v).Kind = %s, want %s", tc.err, got.Kind, tc.want)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("classified error lost its cause")
			}
		})
	}
}

func TestClassifyKeepsTypedErrors(t *testing.T) {
	orig := &Error{Kind: KindSafety, Message: "flagged"}
	wrapped := fmt.Errorf("call failed: %w", orig)
	if got := Classify(wrapped); got != orig {
		t.Fatalf("Classify re-wrapped a typed error: %#v", got)
	}
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) must be nil")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(&Error{Kind: KindRateLimited}); got != KindRateLimited {
		t.Fatalf("KindOf typed = %s", got)
	}
	if got := KindOf(fmt.Errorf("outer: %w", &Error{Kind: KindSafety})); got != KindSafety {
		t.Fatalf("KindOf wrapped = %s", got)
	}
	if got := KindOf(errors.New("dial tcp: timeout")); got != KindNetwork {
		t.Fatalf("untyped errors must default to network, got %s", got)
	}
}

func TestErrorRetryable(t *testing.T) {
	if !(&Error{Kind: KindNetwork}).Retryable() {
		t.Fatalf("network errors are retryable")
	}
	for _, kind := range []ErrorKind{KindRateLimited, KindSafety, KindCancelled, KindInternal} {
		if (&Error{Kind: kind}).Retryable() {
			t.Fatalf("%s must not be retryable", kind)
		}
	}
}
