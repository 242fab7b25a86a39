package translation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/resilience"
)

// SettingsSource resolves backend settings from config entries.
type SettingsSource interface {
	GetString(ctx context.Context, key, def string) string
	Namespace(ctx context.Context, prefix string) (map[string]string, error)
}

// Manager keeps exactly one active backend, chosen by the
// translation_backend config entry, built lazily and invalidated on
// config updates. A per-backend circuit breaker gates calls.
type Manager struct {
	source     SettingsSource
	logger     zerolog.Logger
	maxRetries int
	defaultName string

	mu        sync.Mutex
	factories map[string]BackendFactory
	instances map[string]Backend
	breakers  map[string]*resilience.Breaker
}

// NewManager creates a translation manager.
func NewManager(source SettingsSource, defaultBackend string, maxRetries int, logger zerolog.Logger) *Manager {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Manager{
		source:      source,
		logger:      logger.With().Str("component", "translation-manager").Logger(),
		maxRetries:  maxRetries,
		defaultName: defaultBackend,
		factories:   make(map[string]BackendFactory),
		instances:   make(map[string]Backend),
		breakers:    make(map[string]*resilience.Breaker),
	}
}

// Register adds a backend constructor under its lower-case name.
func (m *Manager) Register(name string, factory BackendFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[name] = factory
}

// Invalidate discards built backend instances. Wired to config_updated.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances = make(map[string]Backend)
}

// ActiveName returns the configured active backend name.
func (m *Manager) ActiveName(ctx context.Context) string {
	return m.source.GetString(ctx, "translation_backend", m.defaultName)
}

// active returns the active backend instance, building it on first use.
func (m *Manager) active(ctx context.Context) (Backend, *resilience.Breaker, error) {
	name := m.ActiveName(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	breaker, ok := m.breakers[name]
	if !ok {
		breaker = resilience.NewBreaker("backend:"+name, 5, 2*time.Minute)
		m.breakers[name] = breaker
	}

	if inst, ok := m.instances[name]; ok {
		return inst, breaker, nil
	}

	factory, ok := m.factories[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown translation backend %q", name)
	}

	settings, err := m.source.Namespace(ctx, "backend."+name+".")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings for backend %q: %w", name, err)
	}

	inst, err := factory(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build backend %q: %w", name, err)
	}
	m.instances[name] = inst
	return inst, breaker, nil
}

// Translate translates lines from sourceLang to targetLang through the
// active backend: chunked to the backend's batch size, batch retries with
// the CJK hallucination guard, then per-line fallback with the same
// discipline. Lines that still fail keep the source text; the result is
// degraded-but-successful while no more than half the lines degraded.
func (m *Manager) Translate(ctx context.Context, lines []string, sourceLang, targetLang string, glossary []GlossaryEntry) (*Result, error) {
	start := time.Now()

	if len(lines) == 0 {
		return &Result{Success: true, Elapsed: time.Since(start)}, nil
	}

	backend, breaker, err := m.active(ctx)
	if err != nil {
		return nil, err
	}
	if !breaker.AllowRequest() {
		return nil, fmt.Errorf("translation backend %s circuit is open", backend.Info().Name)
	}

	info := backend.Info()
	batchSize := info.MaxBatchSize
	if batchSize <= 0 || !info.SupportsBatching {
		batchSize = 1
	}

	var out []string
	degradedLines := 0
	charCount := 0
	for _, line := range lines {
		charCount += len(line)
	}

	for offset := 0; offset < len(lines); offset += batchSize {
		end := offset + batchSize
		if end > len(lines) {
			end = len(lines)
		}
		chunk := lines[offset:end]

		translated, chunkDegraded, err := m.translateChunk(ctx, backend, breaker, chunk, sourceLang, targetLang, glossary)
		if err != nil {
			return &Result{
				Backend: info.Name,
				Elapsed: time.Since(start),
				Success: false,
				Error:   err.Error(),
			}, err
		}
		degradedLines += chunkDegraded
		out = append(out, translated...)
	}

	result := &Result{
		Lines:     out,
		Backend:   info.Name,
		Elapsed:   time.Since(start),
		CharCount: charCount,
		Degraded:  degradedLines > 0,
	}
	if degradedLines*2 > len(lines) {
		result.Success = false
		result.Error = fmt.Sprintf("%d of %d lines failed translation", degradedLines, len(lines))
		return result, fmt.Errorf("%s", result.Error)
	}
	result.Success = true
	return result, nil
}

// translateChunk runs one batch with retries, falling back to per-line
// translation when the batch keeps failing. It returns the translated
// lines and the number of degraded (source-passthrough) lines.
func (m *Manager) translateChunk(ctx context.Context, backend Backend, breaker *resilience.Breaker, chunk []string, sourceLang, targetLang string, glossary []GlossaryEntry) ([]string, int, error) {
	retryCfg := resilience.RetryConfig{
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		MaxAttempts:  m.maxRetries,
		Multiplier:   2.0,
	}

	var batchResult *Result
	outcome := resilience.Retry(ctx, retryCfg, func() resilience.Outcome {
		res, err := backend.TranslateBatch(ctx, chunk, sourceLang, targetLang, glossary)
		if err != nil {
			breaker.RecordFailure()
			return resilience.Classify(err)
		}
		if !res.Success {
			breaker.RecordFailure()
			return resilience.TransientFailure(fmt.Errorf("backend reported failure: %s", res.Error))
		}
		if len(res.Lines) != len(chunk) {
			breaker.RecordFailure()
			return resilience.TransientFailure(fmt.Errorf("line count mismatch: got %d, want %d", len(res.Lines), len(chunk)))
		}
		if !IsCJKTarget(targetLang) && AnyLineCJK(res.Lines) {
			breaker.RecordFailure()
			return resilience.TransientFailure(fmt.Errorf("hallucination guard: CJK output for target %s", targetLang))
		}
		breaker.RecordSuccess()
		batchResult = res
		return resilience.Success()
	})

	if outcome.Succeeded() {
		return batchResult.Lines, 0, nil
	}

	m.logger.Warn().Err(outcome.Err).Int("lines", len(chunk)).Msg("Batch translation failed; falling back to per-line")
	return m.translatePerLine(ctx, backend, breaker, chunk, sourceLang, targetLang, glossary, retryCfg)
}

// translatePerLine translates each line individually with the same retry
// discipline; lines that still fail keep the source text.
func (m *Manager) translatePerLine(ctx context.Context, backend Backend, breaker *resilience.Breaker, chunk []string, sourceLang, targetLang string, glossary []GlossaryEntry, retryCfg resilience.RetryConfig) ([]string, int, error) {
	out := make([]string, len(chunk))
	degraded := 0

	for i, line := range chunk {
		if strings.TrimSpace(line) == "" {
			out[i] = line
			continue
		}

		var lineResult *Result
		outcome := resilience.Retry(ctx, retryCfg, func() resilience.Outcome {
			res, err := backend.TranslateBatch(ctx, []string{line}, sourceLang, targetLang, glossary)
			if err != nil {
				breaker.RecordFailure()
				return resilience.Classify(err)
			}
			if !res.Success || len(res.Lines) != 1 {
				breaker.RecordFailure()
				return resilience.TransientFailure(fmt.Errorf("backend reported failure: %s", res.Error))
			}
			if !IsCJKTarget(targetLang) && ContainsCJK(res.Lines[0]) {
				breaker.RecordFailure()
				return resilience.TransientFailure(fmt.Errorf("hallucination guard: CJK output for target %s", targetLang))
			}
			breaker.RecordSuccess()
			lineResult = res
			return resilience.Success()
		})

		if outcome.Succeeded() {
			out[i] = lineResult.Lines[0]
		} else {
			out[i] = line
			degraded++
		}

		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		default:
		}
	}
	return out, degraded, nil
}

// HealthCheck probes the active backend.
func (m *Manager) HealthCheck(ctx context.Context) (bool, string) {
	backend, _, err := m.active(ctx)
	if err != nil {
		return false, err.Error()
	}
	return backend.HealthCheck(ctx)
}
