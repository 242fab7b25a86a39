// Package hooks runs user-configured scripts in response to events,
// with a restricted environment and captured output.
package hooks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/events"
)

// outputCap limits captured stdout/stderr and each env value.
const outputCap = 4096

// Hook is one configured script binding.
type Hook struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	EventName      string `json:"event_name"` // event name or *
	ScriptPath     string `json:"script_path"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Enabled        bool   `json:"enabled"`
}

// Store reads hook configs and writes execution logs.
type Store struct {
	db *sql.DB
}

// NewStore creates a hook store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enabled returns the enabled hooks bound to event (or to *).
func (s *Store) Enabled(ctx context.Context, event string) ([]Hook, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, event_name, script_path, timeout_seconds, enabled
		FROM hook_configs WHERE enabled = 1 AND (event_name = ? OR event_name = '*')`, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hooks []Hook
	for rows.Next() {
		var h Hook
		if err := rows.Scan(&h.ID, &h.Name, &h.EventName, &h.ScriptPath, &h.TimeoutSeconds, &h.Enabled); err != nil {
			return nil, err
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

// Log records one execution.
func (s *Store) Log(ctx context.Context, hookID int64, event string, exitCode int, stdout, stderr string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hook_logs (hook_id, event_name, exit_code, stdout, stderr, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		hookID, event, exitCode, cap4k(stdout), cap4k(stderr), duration.Milliseconds())
	return err
}

// Logs returns recent executions.
func (s *Store) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hook_id, event_name, exit_code, stdout, stderr, duration_ms, created_at
		FROM hook_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.HookID, &l.EventName, &l.ExitCode, &l.Stdout, &l.Stderr, &l.DurationMs, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// LogEntry is one recorded execution.
type LogEntry struct {
	ID         int64     `json:"id"`
	HookID     int64     `json:"hook_id"`
	EventName  string    `json:"event_name"`
	ExitCode   int       `json:"exit_code"`
	Stdout     string    `json:"stdout"`
	Stderr     string    `json:"stderr"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Engine dispatches events to script hooks on a small worker pool. It
// never blocks event producers; when the pool is saturated the event is
// dropped with a log line.
type Engine struct {
	store  *Store
	bus    *events.Bus
	logger zerolog.Logger
	work   chan dispatch
}

type dispatch struct {
	name    string
	payload events.Payload
}

// NewEngine creates the hook engine with the given worker count.
func NewEngine(store *Store, bus *events.Bus, workers int, logger zerolog.Logger) *Engine {
	if workers <= 0 {
		workers = 2
	}
	e := &Engine{
		store:  store,
		bus:    bus,
		logger: logger.With().Str("component", "hook-engine").Logger(),
		work:   make(chan dispatch, 64),
	}
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

// Dispatch implements events.Dispatcher.
func (e *Engine) Dispatch(name string, payload events.Payload) {
	if !events.HookTriggers[name] {
		return
	}
	select {
	case e.work <- dispatch{name: name, payload: payload}:
	default:
		e.logger.Warn().Str("event", name).Msg("Hook queue full; dropping event")
	}
}

func (e *Engine) worker() {
	for d := range e.work {
		ctx := context.Background()
		hooks, err := e.store.Enabled(ctx, d.name)
		if err != nil {
			e.logger.Error().Err(err).Str("event", d.name).Msg("Failed to load hooks")
			continue
		}
		for _, hook := range hooks {
			e.run(ctx, hook, d)
		}
	}
}

// run executes one hook with a restricted environment.
func (e *Engine) run(ctx context.Context, hook Hook, d dispatch) {
	timeout := time.Duration(hook.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	home, err := os.MkdirTemp("", "sublarr-hook-*")
	if err != nil {
		e.logger.Error().Err(err).Str("hook", hook.Name).Msg("Failed to create hook home")
		return
	}
	defer os.RemoveAll(home)

	cmd := exec.CommandContext(ctx, hook.ScriptPath)
	cmd.Env = e.environment(home, d)

	var stdout, stderr strings.Builder
	cmd.Stdout = limitWriter{&stdout}
	cmd.Stderr = limitWriter{&stderr}

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	exitCode := 0
	if runErr != nil {
		exitCode = -1
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	if err := e.store.Log(ctx, hook.ID, d.name, exitCode, stdout.String(), stderr.String(), duration); err != nil {
		e.logger.Error().Err(err).Str("hook", hook.Name).Msg("Failed to record hook log")
	}
	e.logger.Debug().Str("hook", hook.Name).Str("event", d.name).
		Int("exit_code", exitCode).Dur("duration", duration).Msg("Hook executed")

	if runErr == nil {
		e.bus.Emit(events.EventHookExecuted, map[string]any{
			"hook":        hook.Name,
			"event":       d.name,
			"exit_code":   exitCode,
			"duration_ms": duration.Milliseconds(),
		})
	}
}

// environment builds the restricted env: PATH, a throwaway HOME, the
// event name, the full payload as JSON, and one variable per payload
// key, each value capped.
func (e *Engine) environment(home string, d dispatch) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + home,
		"SUBLARR_EVENT=" + d.name,
	}
	if data, err := json.Marshal(d.payload); err == nil {
		env = append(env, "SUBLARR_EVENT_DATA="+cap4k(string(data)))
	}
	for key, value := range d.payload {
		env = append(env, fmt.Sprintf("SUBLARR_%s=%s", strings.ToUpper(key), cap4k(fmt.Sprint(value))))
	}
	return env
}

func cap4k(s string) string {
	if len(s) > outputCap {
		return s[:outputCap]
	}
	return s
}

// limitWriter discards everything past the output cap.
type limitWriter struct {
	b *strings.Builder
}

func (w limitWriter) Write(p []byte) (int, error) {
	remaining := outputCap - w.b.Len()
	if remaining > 0 {
		if len(p) > remaining {
			w.b.Write(p[:remaining])
		} else {
			w.b.Write(p)
		}
	}
	return len(p), nil
}
