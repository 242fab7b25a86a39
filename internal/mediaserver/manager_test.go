package mediaserver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/resilience"
	"github.com/sublarr/sublarr/internal/testutil"
)

type stubSource struct {
	servers string
}

func (s *stubSource) GetString(ctx context.Context, key, def string) string {
	if key == "mediaservers" && s.servers != "" {
		return s.servers
	}
	return def
}

type fakeClient struct {
	calls atomic.Int64
	err   error
}

func (f *fakeClient) Refresh(ctx context.Context, path string) error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeClient) HealthCheck(ctx context.Context) error { return f.err }

func newManager(t *testing.T, servers string) *Manager {
	t.Helper()
	return NewManager(&stubSource{servers: servers}, "test", testutil.NopLogger())
}

func (m *Manager) seed(name string, c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[name] = c
}

func TestRefreshAllFansOut(t *testing.T) {
	m := newManager(t, `[
		{"name":"plex-main","kind":"plex","url":"http://plex","token":"t","enabled":true},
		{"name":"jf","kind":"jellyfin","url":"http://jf","token":"t","enabled":true}
	]`)
	a, b := &fakeClient{}, &fakeClient{}
	m.seed("plex-main", a)
	m.seed("jf", b)

	results := m.RefreshAll(context.Background(), "/media/show/ep01.mkv")
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success, r.Instance)
		assert.Empty(t, r.Error)
	}
	assert.Equal(t, int64(1), a.calls.Load())
	assert.Equal(t, int64(1), b.calls.Load())
}

func TestRefreshAllOneFailureDoesNotBlockOthers(t *testing.T) {
	m := newManager(t, `[
		{"name":"bad","kind":"plex","url":"http://bad","token":"t","enabled":true},
		{"name":"good","kind":"jellyfin","url":"http://good","token":"t","enabled":true}
	]`)
	m.seed("bad", &fakeClient{err: errors.New("connection refused")})
	m.seed("good", &fakeClient{})

	results := m.RefreshAll(context.Background(), "/media/a.mkv")
	require.Len(t, results, 2)

	byName := map[string]RefreshResult{}
	for _, r := range results {
		byName[r.Instance] = r
	}
	assert.False(t, byName["bad"].Success)
	assert.Contains(t, byName["bad"].Error, "connection refused")
	assert.True(t, byName["good"].Success)
}

func TestRefreshAllSkipsDisabled(t *testing.T) {
	m := newManager(t, `[{"name":"off","kind":"plex","url":"http://x","token":"t","enabled":false}]`)
	c := &fakeClient{}
	m.seed("off", c)

	results := m.RefreshAll(context.Background(), "/media/a.mkv")
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, int64(0), c.calls.Load())
}

func TestRefreshAllSkipsOpenCircuit(t *testing.T) {
	m := newManager(t, `[{"name":"flaky","kind":"plex","url":"http://x","token":"t","enabled":true}]`)
	c := &fakeClient{err: errors.New("boom")}
	m.seed("flaky", c)

	// Breaker opens after three consecutive failures.
	for i := 0; i < 3; i++ {
		results := m.RefreshAll(context.Background(), "/media/a.mkv")
		require.Len(t, results, 1)
		assert.False(t, results[0].Success)
	}
	assert.Equal(t, int64(3), c.calls.Load())

	results := m.RefreshAll(context.Background(), "/media/a.mkv")
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Equal(t, "circuit open", results[0].Error)
	assert.Equal(t, int64(3), c.calls.Load())
}

func TestRefreshAllUnknownKind(t *testing.T) {
	m := newManager(t, `[{"name":"mystery","kind":"kodi","url":"http://x","token":"t","enabled":true}]`)

	results := m.RefreshAll(context.Background(), "/media/a.mkv")
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "unknown media server kind")
}

func TestInstancesCachedUntilInvalidate(t *testing.T) {
	src := &stubSource{servers: `[{"name":"a","kind":"plex","url":"http://x","token":"t","enabled":true}]`}
	m := NewManager(src, "test", testutil.NopLogger())

	require.Len(t, m.instances(context.Background()), 1)

	src.servers = `[]`
	assert.Len(t, m.instances(context.Background()), 1)

	m.Invalidate()
	assert.Len(t, m.instances(context.Background()), 0)
}

func TestStatusesReportBreakerState(t *testing.T) {
	m := newManager(t, `[{"name":"plex-main","kind":"plex","url":"http://x","token":"t","enabled":true}]`)

	statuses := m.Statuses(context.Background())
	require.Len(t, statuses, 1)
	assert.Equal(t, "mediaserver:plex-main", statuses[0].Breaker.Name)
	assert.Equal(t, resilience.StateClosed, statuses[0].Breaker.State)
}

func TestMalformedConfigYieldsEmptyList(t *testing.T) {
	m := newManager(t, `{"not":"an array"}`)
	assert.Empty(t, m.RefreshAll(context.Background(), "/media/a.mkv"))
}
