package resilience

import (
	"context"
	"time"
)

// RetryConfig configures exponential backoff retry behavior.
type RetryConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	Multiplier   float64
}

// DefaultRetryConfig returns sensible defaults for collaborator retry.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     time.Minute,
		MaxAttempts:  3,
		Multiplier:   2.0,
	}
}

// Retry executes fn until it succeeds, returns a permanent failure, or the
// attempt budget is exhausted. RateLimited outcomes sleep for the
// server-requested delay instead of the backoff curve; the budget is
// shared across both.
func Retry(ctx context.Context, cfg RetryConfig, fn func() Outcome) Outcome {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}

	delay := cfg.InitialDelay
	var last Outcome

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		last = fn()
		if last.Succeeded() || !last.Retryable() {
			return last
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		wait := delay
		if last.Kind == RateLimited {
			wait = last.RetryAfter
		} else {
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		select {
		case <-ctx.Done():
			return TransientFailure(ctx.Err())
		case <-time.After(wait):
		}
	}
	return last
}
