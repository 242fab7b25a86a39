// Package manager enumerates, orders, invokes, scores, caches,
// blacklists, and circuit-breaks subtitle providers.
package manager

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/blacklist"
	"github.com/sublarr/sublarr/internal/provider"
	"github.com/sublarr/sublarr/internal/providercache"
	"github.com/sublarr/sublarr/internal/resilience"
	"github.com/sublarr/sublarr/internal/scoring"
	"github.com/sublarr/sublarr/internal/stats"
)

// Settings controls provider selection and ordering.
type Settings struct {
	Enabled        []string
	Priority       []string
	AutoPrioritize bool
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// SettingsSource resolves per-provider configuration maps, keyed
// provider.<name>.<key> in the config-entry table.
type SettingsSource interface {
	Namespace(ctx context.Context, prefix string) (map[string]string, error)
}

// Manager owns provider instances and drives the search pipeline.
type Manager struct {
	registry *provider.Registry
	settings Settings
	source   SettingsSource
	cache    *providercache.Store
	blocked  *blacklist.Store
	scorer   *scoring.Service
	stats    *stats.Service
	logger   zerolog.Logger

	mu        sync.Mutex
	instances map[string]provider.Provider
	breakers  map[string]*resilience.Breaker
	buckets   map[string]*rateBucket
}

// rateBucket tracks the declared outbound budget for one provider.
type rateBucket struct {
	count     int
	resetTime time.Time
}

// New creates a provider manager.
func New(
	registry *provider.Registry,
	settings Settings,
	source SettingsSource,
	cache *providercache.Store,
	blocked *blacklist.Store,
	scorer *scoring.Service,
	statsService *stats.Service,
	logger zerolog.Logger,
) *Manager {
	if settings.BreakerThreshold <= 0 {
		settings.BreakerThreshold = 5
	}
	if settings.BreakerCooldown <= 0 {
		settings.BreakerCooldown = 5 * time.Minute
	}
	return &Manager{
		registry:  registry,
		settings:  settings,
		source:    source,
		cache:     cache,
		blocked:   blocked,
		scorer:    scorer,
		stats:     statsService,
		logger:    logger.With().Str("component", "provider-manager").Logger(),
		instances: make(map[string]provider.Provider),
		breakers:  make(map[string]*resilience.Breaker),
		buckets:   make(map[string]*rateBucket),
	}
}

// Invalidate discards cached provider instances so the next call rebuilds
// them from configuration. Wired to the config_updated event.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, inst := range m.instances {
		inst.Terminate()
		delete(m.instances, name)
	}
}

// UpdateSettings replaces selection and ordering settings.
func (m *Manager) UpdateSettings(settings Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if settings.BreakerThreshold <= 0 {
		settings.BreakerThreshold = m.settings.BreakerThreshold
	}
	if settings.BreakerCooldown <= 0 {
		settings.BreakerCooldown = m.settings.BreakerCooldown
	}
	m.settings = settings
}

// Breaker returns the circuit breaker for a provider, creating it on
// first use. Breakers survive instance invalidation deliberately.
func (m *Manager) Breaker(name string) *resilience.Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breakerLocked(name)
}

func (m *Manager) breakerLocked(name string) *resilience.Breaker {
	b, ok := m.breakers[name]
	if !ok {
		b = resilience.NewBreaker(name, m.settings.BreakerThreshold, m.settings.BreakerCooldown)
		m.breakers[name] = b
	}
	return b
}

// instance returns the lazily built provider instance for name.
func (m *Manager) instance(ctx context.Context, name string) (provider.Provider, error) {
	m.mu.Lock()
	if inst, ok := m.instances[name]; ok {
		m.mu.Unlock()
		return inst, nil
	}
	m.mu.Unlock()

	settings := map[string]string{}
	if m.source != nil {
		ns, err := m.source.Namespace(ctx, "provider."+name+".")
		if err != nil {
			m.logger.Warn().Err(err).Str("provider", name).Msg("Failed to load provider settings")
		} else {
			settings = ns
		}
	}

	inst, err := m.registry.Build(name, settings)
	if err != nil {
		return nil, err
	}
	if err := inst.Initialize(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.instances[name]; ok {
		inst.Terminate()
		return existing, nil
	}
	m.instances[name] = inst
	return inst, nil
}

// Order returns enabled provider names in invocation order: the static
// priority list, or a success-rate ranking when auto-prioritise is on.
// Ties break by configured order, then name.
func (m *Manager) Order(ctx context.Context) []string {
	m.mu.Lock()
	settings := m.settings
	m.mu.Unlock()

	enabled := make([]string, 0, len(settings.Enabled))
	seen := make(map[string]bool)
	for _, name := range settings.Enabled {
		if !seen[name] {
			enabled = append(enabled, name)
			seen[name] = true
		}
	}

	configuredRank := make(map[string]int, len(settings.Priority))
	for i, name := range settings.Priority {
		configuredRank[name] = i
	}
	rankOf := func(name string) int {
		if r, ok := configuredRank[name]; ok {
			return r
		}
		return len(settings.Priority)
	}

	if !settings.AutoPrioritize {
		sort.SliceStable(enabled, func(i, j int) bool {
			ri, rj := rankOf(enabled[i]), rankOf(enabled[j])
			if ri != rj {
				return ri < rj
			}
			return enabled[i] < enabled[j]
		})
		return enabled
	}

	rates := make(map[string]float64, len(enabled))
	if providerStats, err := m.stats.ProviderStats(ctx); err == nil {
		for _, ps := range providerStats {
			rates[ps.ProviderName] = ps.SuccessRate()
		}
	}

	sort.SliceStable(enabled, func(i, j int) bool {
		si, sj := rates[enabled[i]], rates[enabled[j]]
		if si != sj {
			return si > sj
		}
		ri, rj := rankOf(enabled[i]), rankOf(enabled[j])
		if ri != rj {
			return ri < rj
		}
		return enabled[i] < enabled[j]
	})
	return enabled
}

// waitForBudget enforces the provider's declared rate limit between
// attempts. It blocks until the window has room or the context ends.
func (m *Manager) waitForBudget(ctx context.Context, name string, limit provider.RateLimit) error {
	if limit.MaxRequests <= 0 || limit.Window <= 0 {
		return nil
	}

	for {
		m.mu.Lock()
		bucket, ok := m.buckets[name]
		if !ok {
			bucket = &rateBucket{resetTime: time.Now().Add(limit.Window)}
			m.buckets[name] = bucket
		}
		now := time.Now()
		if now.After(bucket.resetTime) {
			bucket.count = 0
			bucket.resetTime = now.Add(limit.Window)
		}
		if bucket.count < limit.MaxRequests {
			bucket.count++
			m.mu.Unlock()
			return nil
		}
		wait := time.Until(bucket.resetTime)
		m.mu.Unlock()

		m.logger.Debug().Str("provider", name).Dur("wait", wait).Msg("Provider rate limit reached; waiting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Statuses returns a breaker snapshot per known provider.
func (m *Manager) Statuses() []resilience.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]resilience.Snapshot, 0, len(m.breakers))
	for _, b := range m.breakers {
		out = append(out, b.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Terminate releases all provider instances.
func (m *Manager) Terminate() {
	m.Invalidate()
}
