package mediaserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/resilience"
)

// SettingsSource resolves the mediaservers config entry.
type SettingsSource interface {
	GetString(ctx context.Context, key, def string) string
}

// Manager fans refresh requests out to every enabled media server.
// Instances come from the mediaservers config entry and are rebuilt on
// config updates; each instance carries its own circuit breaker.
type Manager struct {
	source  SettingsSource
	version string
	logger  zerolog.Logger

	mu       sync.Mutex
	clients  map[string]Client
	breakers map[string]*resilience.Breaker
	stale    bool
	cached   []Instance
}

// NewManager creates a media server manager.
func NewManager(source SettingsSource, version string, logger zerolog.Logger) *Manager {
	return &Manager{
		source:   source,
		version:  version,
		logger:   logger.With().Str("component", "mediaserver-manager").Logger(),
		clients:  make(map[string]Client),
		breakers: make(map[string]*resilience.Breaker),
		stale:    true,
	}
}

// Invalidate discards built clients. Wired to config_updated.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = make(map[string]Client)
	m.stale = true
}

// instances decodes the configured server list, caching until the next
// Invalidate. Malformed config yields an empty list with a logged error
// rather than failing every refresh.
func (m *Manager) instances(ctx context.Context) []Instance {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.stale {
		return m.cached
	}

	raw := m.source.GetString(ctx, "mediaservers", "[]")
	var list []Instance
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		m.logger.Error().Err(err).Msg("Malformed mediaservers config entry")
		list = nil
	}
	m.cached = list
	m.stale = false
	return list
}

func (m *Manager) client(inst Instance) (Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.clients[inst.Name]; ok {
		return c, nil
	}

	var c Client
	switch inst.Kind {
	case "plex":
		c = NewPlexClient(inst.URL, inst.Token, m.version, m.logger)
	case "jellyfin", "emby":
		c = NewJellyfinClient(inst.URL, inst.Token, m.logger)
	default:
		return nil, fmt.Errorf("unknown media server kind %q", inst.Kind)
	}
	m.clients[inst.Name] = c
	return c, nil
}

func (m *Manager) breaker(name string) *resilience.Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.breakers[name]
	if !ok {
		b = resilience.NewBreaker("mediaserver:"+name, 3, 5*time.Minute)
		m.breakers[name] = b
	}
	return b
}

// RefreshAll asks every enabled instance whose circuit is closed to
// rescan the library containing path. One failing server never blocks
// the others; each instance reports its own result.
func (m *Manager) RefreshAll(ctx context.Context, path string) []RefreshResult {
	instances := m.instances(ctx)
	results := make([]RefreshResult, len(instances))

	var wg sync.WaitGroup
	for i, inst := range instances {
		results[i] = RefreshResult{Instance: inst.Name, Kind: inst.Kind}

		if !inst.Enabled {
			results[i].Skipped = true
			continue
		}
		breaker := m.breaker(inst.Name)
		if !breaker.AllowRequest() {
			results[i].Skipped = true
			results[i].Error = "circuit open"
			continue
		}

		client, err := m.client(inst)
		if err != nil {
			results[i].Error = err.Error()
			continue
		}

		wg.Add(1)
		go func(i int, c Client, b *resilience.Breaker) {
			defer wg.Done()

			refreshCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
			defer cancel()

			if err := c.Refresh(refreshCtx, path); err != nil {
				b.RecordFailure()
				results[i].Error = err.Error()
				m.logger.Warn().Err(err).Str("instance", results[i].Instance).Msg("Media server refresh failed")
				return
			}
			b.RecordSuccess()
			results[i].Success = true
		}(i, client, breaker)
	}
	wg.Wait()

	return results
}

// Statuses reports each configured instance with its breaker state.
func (m *Manager) Statuses(ctx context.Context) []InstanceStatus {
	instances := m.instances(ctx)
	out := make([]InstanceStatus, 0, len(instances))
	for _, inst := range instances {
		out = append(out, InstanceStatus{
			Instance: inst,
			Breaker:  m.breaker(inst.Name).Status(),
		})
	}
	return out
}

// InstanceStatus pairs an instance with its breaker snapshot.
type InstanceStatus struct {
	Instance Instance            `json:"instance"`
	Breaker  resilience.Snapshot `json:"breaker"`
}
