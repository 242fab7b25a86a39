package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rs/zerolog"
)

func newBus() *Bus {
	return NewBus(zerolog.Nop())
}

func TestSubscribeByName(t *testing.T) {
	bus := newBus()

	var got []string
	bus.Subscribe(EventDownloadComplete, func(name string, payload Payload) {
		got = append(got, name)
	})

	bus.Emit(EventDownloadComplete, Payload{"path": "/a"})
	bus.Emit(EventPipelineSkipped, Payload{"path": "/a", "reason": "x"})

	assert.Equal(t, []string{EventDownloadComplete}, got)
}

func TestSubscribeWildcard(t *testing.T) {
	bus := newBus()

	var got []string
	bus.Subscribe("*", func(name string, payload Payload) {
		got = append(got, name)
	})

	bus.Emit(EventDownloadComplete, Payload{"path": "/a"})
	bus.Emit(EventPipelineSkipped, Payload{"path": "/a", "reason": "x"})

	assert.Equal(t, []string{EventDownloadComplete, EventPipelineSkipped}, got)
}

func TestEmitFiltersPayloadToCatalog(t *testing.T) {
	bus := newBus()

	var got Payload
	bus.Subscribe(EventPipelineSkipped, func(name string, payload Payload) {
		got = payload
	})

	bus.Emit(EventPipelineSkipped, Payload{
		"path":     "/a",
		"reason":   "test",
		"uncataloged": "dropped",
	})

	require.NotNil(t, got)
	assert.Equal(t, "/a", got["path"])
	assert.Equal(t, "test", got["reason"])
	assert.NotContains(t, got, "uncataloged")
}

func TestEmitDropsUnknownEvents(t *testing.T) {
	bus := newBus()

	called := false
	bus.Subscribe("*", func(name string, payload Payload) {
		called = true
	})

	bus.Emit("not_in_catalog", Payload{"x": 1})
	assert.False(t, called)
}

func TestDispatcherReceivesAsync(t *testing.T) {
	bus := newBus()

	d := &recordingDispatcher{}
	bus.AddDispatcher(d)

	bus.Emit(EventWantedScanDone, Payload{"inserted": 3, "updated": 1, "total": 4})

	require.Eventually(t, func() bool {
		return len(d.names()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, EventWantedScanDone, d.names()[0])
}

type recordingDispatcher struct {
	mu    sync.Mutex
	seen  []string
}

func (d *recordingDispatcher) Dispatch(name string, payload Payload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = append(d.seen, name)
}

func (d *recordingDispatcher) names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.seen...)
}
