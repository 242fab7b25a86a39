package resilience

import (
	"errors"
	"time"
)

// Kind classifies the result of a collaborator call so retry loops can
// dispatch on a tag instead of inspecting error strings.
type Kind int

const (
	// OK means the call succeeded.
	OK Kind = iota
	// Transient means the call failed but is worth retrying (network, 5xx).
	Transient
	// Permanent means retrying will not help (auth, bad request, parse).
	Permanent
	// RateLimited means the collaborator asked us to wait before retrying.
	RateLimited
)

// Outcome is the typed result of one collaborator call.
type Outcome struct {
	Kind       Kind
	Err        error
	RetryAfter time.Duration // only set for RateLimited
}

// Succeeded reports whether the call completed.
func (o Outcome) Succeeded() bool { return o.Kind == OK }

// Retryable reports whether another attempt may succeed.
func (o Outcome) Retryable() bool { return o.Kind == Transient || o.Kind == RateLimited }

// Success returns an OK outcome.
func Success() Outcome { return Outcome{Kind: OK} }

// TransientFailure wraps a retryable error.
func TransientFailure(err error) Outcome { return Outcome{Kind: Transient, Err: err} }

// PermanentFailure wraps a non-retryable error.
func PermanentFailure(err error) Outcome { return Outcome{Kind: Permanent, Err: err} }

// RateLimitedFor wraps a rate-limit response with the server-requested
// delay. Delays above the cap are clamped to 60 seconds.
func RateLimitedFor(err error, delay time.Duration) Outcome {
	const maxDelay = 60 * time.Second
	if delay <= 0 {
		delay = time.Second
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return Outcome{Kind: RateLimited, Err: err, RetryAfter: delay}
}

// RateLimitError carries the Retry-After delay through an error chain.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return "rate limited" }

// Classify converts a plain error into an Outcome, recognising rate-limit
// errors by type.
func Classify(err error) Outcome {
	if err == nil {
		return Success()
	}
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return RateLimitedFor(err, rl.RetryAfter)
	}
	return TransientFailure(err)
}
