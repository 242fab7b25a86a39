// Package events provides the in-process event bus. Emission dispatches
// synchronously to registered subscribers and asynchronously to external
// dispatch engines (script hooks, webhooks); neither can block producers.
package events

import (
	"sync"

	"github.com/rs/zerolog"
)

// Payload carries event data as key/value pairs drawn from the catalog.
type Payload map[string]any

// Subscriber receives events synchronously on the emitting goroutine.
// Subscribers must be fast; anything slow belongs in a Dispatcher.
type Subscriber func(name string, payload Payload)

// Dispatcher receives events asynchronously. The bus hands each event to
// every dispatcher on a separate goroutine.
type Dispatcher interface {
	Dispatch(name string, payload Payload)
}

// Bus routes named events to subscribers and dispatchers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	dispatchers []Dispatcher
	logger      zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		logger:      logger.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a synchronous subscriber for one event name, or for
// all events when name is "*".
func (b *Bus) Subscribe(name string, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], fn)
}

// AddDispatcher registers an asynchronous dispatch engine.
func (b *Bus) AddDispatcher(d Dispatcher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dispatchers = append(b.dispatchers, d)
}

// Emit delivers an event. Unknown names and payload keys outside the
// catalog are dropped with a warning.
func (b *Bus) Emit(name string, payload Payload) {
	allowed, ok := Catalog[name]
	if !ok {
		b.logger.Warn().Str("event", name).Msg("Dropping event not in catalog")
		return
	}

	clean := make(Payload, len(payload))
	for _, key := range allowed {
		if v, exists := payload[key]; exists {
			clean[key] = v
		}
	}
	for key := range payload {
		if _, exists := clean[key]; !exists {
			b.logger.Debug().Str("event", name).Str("key", key).Msg("Dropping payload key not in catalog")
		}
	}

	b.mu.RLock()
	subs := append(append([]Subscriber{}, b.subscribers[name]...), b.subscribers["*"]...)
	dispatchers := append([]Dispatcher{}, b.dispatchers...)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(name, clean)
	}

	for _, d := range dispatchers {
		go d.Dispatch(name, clean)
	}
}
