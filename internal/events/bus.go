// Package events provides the in-process event bus that decouples the
// hedging decision engine from the broker feed's callback timing.
// Order status transitions, feed connectivity changes and volatility
// refreshes are delivered as discrete messages to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a category of event
type EventType string

const (
	// OrderStatusChanged is emitted when the execution collaborator
	// reports an order transition (submitted, filled, cancelled,
	// rejected)
	OrderStatusChanged EventType = "order_status_changed"

	// HedgeOrderPlaced is emitted when the decision engine submits a
	// hedging order
	HedgeOrderPlaced EventType = "hedge_order_placed"

	// FeedStatusChanged is emitted when the broker feed connects or
	// disconnects
	FeedStatusChanged EventType = "feed_status_changed"

	// VolatilityUpdated is emitted after a volatility refresh completes
	VolatilityUpdated EventType = "volatility_updated"

	// TargetChanged is emitted when the operator creates or updates a
	// hedge target
	TargetChanged EventType = "target_changed"
)

// Event is a single bus message
type Event struct {
	Timestamp time.Time
	Type      EventType
	Module    string
	Data      map[string]interface{}
}

// Handler processes one event. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(event *Event)

// Bus is a thread-safe publish/subscribe event bus
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates a new event bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes an event with loosely typed data
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Module:    module,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("handlers", len(handlers)).
		Msg("Emitting event")

	for _, handler := range handlers {
		handler(event)
	}
}

// EmitTyped publishes an event carrying a typed data payload,
// flattened into the event's data map via the payload's Fields method
func (b *Bus) EmitTyped(module string, data EventData) {
	b.Emit(data.EventType(), module, data.Fields())
}
