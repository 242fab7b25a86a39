package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/resilience"
)

// UserAgent identifies outbound requests from all providers.
var UserAgent = "Sublarr/dev"

// Session is the shared retry-aware HTTP client used by every provider.
// It retries on 429/5xx and network errors with exponential backoff, and
// honours Retry-After on 429 (capped at 60 s) within the same budget.
type Session struct {
	client  *http.Client
	retry   resilience.RetryConfig
	logger  zerolog.Logger
	headers map[string]string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor float64
	Headers       map[string]string
}

// NewSession builds a retry-aware HTTP session.
func NewSession(cfg SessionConfig, logger zerolog.Logger) *Session {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2.0
	}

	return &Session{
		client: &http.Client{Timeout: cfg.Timeout},
		retry: resilience.RetryConfig{
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			MaxAttempts:  cfg.MaxRetries,
			Multiplier:   cfg.BackoffFactor,
		},
		logger:  logger.With().Str("component", "http-session").Logger(),
		headers: cfg.Headers,
	}
}

// Do executes one request with the session's retry policy and returns the
// response body. Callers own nothing; the body is fully read and closed.
func (s *Session) Do(ctx context.Context, req *http.Request) ([]byte, int, error) {
	var body []byte
	var status int

	req.Header.Set("User-Agent", UserAgent)
	for k, v := range s.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}

	outcome := resilience.Retry(ctx, s.retry, func() resilience.Outcome {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return resilience.PermanentFailure(err)
			}
			attempt.Body = b
		}

		resp, err := s.client.Do(attempt)
		if err != nil {
			return resilience.TransientFailure(err)
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return resilience.TransientFailure(err)
		}

		switch {
		case status == http.StatusTooManyRequests:
			delay := retryAfter(resp)
			s.logger.Debug().Str("url", req.URL.String()).Dur("retryAfter", delay).Msg("Rate limited")
			return resilience.RateLimitedFor(fmt.Errorf("rate limited by %s", req.URL.Host), delay)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return resilience.PermanentFailure(fmt.Errorf("authentication failed: status %d", status))
		case status >= 500:
			return resilience.TransientFailure(fmt.Errorf("server error: status %d", status))
		case status >= 400:
			return resilience.PermanentFailure(fmt.Errorf("request failed: status %d", status))
		}
		return resilience.Success()
	})

	if !outcome.Succeeded() {
		return nil, status, outcome.Err
	}
	return body, status, nil
}

// Get issues a GET request through the session.
func (s *Session) Get(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.Do(ctx, req)
}

// Client exposes the underlying http.Client for callers that need
// streaming responses.
func (s *Session) Client() *http.Client {
	return s.client
}

// retryAfter parses the Retry-After header, capped at 60 seconds.
func retryAfter(resp *http.Response) time.Duration {
	const maxWait = 60 * time.Second

	header := resp.Header.Get("Retry-After")
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil {
		d := time.Duration(secs) * time.Second
		if d > maxWait {
			return maxWait
		}
		if d <= 0 {
			return time.Second
		}
		return d
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d > maxWait {
			return maxWait
		}
		if d <= 0 {
			return time.Second
		}
		return d
	}
	return time.Second
}
