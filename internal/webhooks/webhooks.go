// Package webhooks delivers events to configured HTTP endpoints with
// HMAC signing and backoff.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
)

// payloadVersion is the wire version of the webhook body.
const payloadVersion = 1

// skipThreshold is the consecutive-failure count after which a webhook
// is silently skipped until it succeeds again.
const skipThreshold = 10

// Webhook is one configured endpoint.
type Webhook struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	URL            string `json:"url"`
	Secret         string `json:"secret,omitempty"`
	EventName      string `json:"event_name"` // event name or *
	Retries        int    `json:"retries"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Enabled        bool   `json:"enabled"`
}

// Store reads webhook configs.
type Store struct {
	db *sql.DB
}

// NewStore creates a webhook store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enabled returns the enabled webhooks bound to event (or to *).
func (s *Store) Enabled(ctx context.Context, event string) ([]Webhook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, url, COALESCE(secret, ''), event_name, retries, timeout_seconds, enabled
		FROM webhook_configs WHERE enabled = 1 AND (event_name = ? OR event_name = '*')`, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []Webhook
	for rows.Next() {
		var w Webhook
		if err := rows.Scan(&w.ID, &w.Name, &w.URL, &w.Secret, &w.EventName, &w.Retries, &w.TimeoutSeconds, &w.Enabled); err != nil {
			return nil, err
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

// Dispatcher posts events to webhooks. Consecutive-failure counts live
// in memory only; the config row is never modified, so an operator can
// resume delivery by fixing the endpoint.
type Dispatcher struct {
	store  *Store
	client *http.Client
	logger zerolog.Logger

	mu       sync.Mutex
	failures map[int64]int
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(store *Store, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		client:   &http.Client{},
		logger:   logger.With().Str("component", "webhook-dispatcher").Logger(),
		failures: make(map[int64]int),
	}
}

// Dispatch implements events.Dispatcher. The bus already calls this on
// its own goroutine, so delivery happens inline.
func (d *Dispatcher) Dispatch(name string, payload events.Payload) {
	if !events.HookTriggers[name] {
		return
	}
	ctx := context.Background()

	hooks, err := d.store.Enabled(ctx, name)
	if err != nil {
		d.logger.Error().Err(err).Str("event", name).Msg("Failed to load webhooks")
		return
	}

	body, err := json.Marshal(map[string]any{
		"event_name": name,
		"version":    payloadVersion,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data":       payload,
	})
	if err != nil {
		return
	}

	for _, hook := range hooks {
		if d.failureCount(hook.ID) >= skipThreshold {
			d.logger.Debug().Str("webhook", hook.Name).Msg("Skipping webhook after repeated failures")
			continue
		}
		if err := d.deliver(ctx, hook, body); err != nil {
			n := d.recordFailure(hook.ID)
			d.logger.Warn().Err(err).Str("webhook", hook.Name).Int("consecutive_failures", n).Msg("Webhook delivery failed")
		} else {
			d.recordSuccess(hook.ID)
		}
	}
}

// deliver posts the body with exponential backoff on 429 and 5xx.
func (d *Dispatcher) deliver(ctx context.Context, hook Webhook, body []byte) error {
	timeout := time.Duration(hook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retries := hook.Retries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	delay := time.Second
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		status, err := d.post(attemptCtx, hook, body)
		cancel()

		switch {
		case err != nil:
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status == http.StatusTooManyRequests || status >= 500:
			lastErr = fmt.Errorf("webhook returned status %d", status)
		default:
			return fmt.Errorf("webhook returned status %d", status)
		}
	}
	return lastErr
}

func (d *Dispatcher) post(ctx context.Context, hook Webhook, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if hook.Secret != "" {
		req.Header.Set("X-Sublarr-Signature", Sign(hook.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Sign computes the signature header value for a body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (d *Dispatcher) failureCount(id int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[id]
}

func (d *Dispatcher) recordFailure(id int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[id]++
	return d.failures[id]
}

func (d *Dispatcher) recordSuccess(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.failures, id)
}
