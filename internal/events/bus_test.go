package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBusEmitDeliversToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received []*Event
	bus.Subscribe(OrderStatusChanged, func(event *Event) {
		received = append(received, event)
	})

	bus.Emit(OrderStatusChanged, "test", map[string]interface{}{"order_id": "abc"})

	assert.Len(t, received, 1)
	assert.Equal(t, OrderStatusChanged, received[0].Type)
	assert.Equal(t, "test", received[0].Module)
	assert.Equal(t, "abc", received[0].Data["order_id"])
	assert.False(t, received[0].Timestamp.IsZero())
}

func TestBusEmitIgnoresUnsubscribedTypes(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	called := false
	bus.Subscribe(OrderStatusChanged, func(event *Event) {
		called = true
	})

	bus.Emit(FeedStatusChanged, "test", nil)

	assert.False(t, called)
}

func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	count := 0
	bus.Subscribe(HedgeOrderPlaced, func(event *Event) { count++ })
	bus.Subscribe(HedgeOrderPlaced, func(event *Event) { count++ })

	bus.Emit(HedgeOrderPlaced, "hedger", nil)

	assert.Equal(t, 2, count)
}

func TestBusEmitTyped(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var received *Event
	bus.Subscribe(OrderStatusChanged, func(event *Event) {
		received = event
	})

	bus.EmitTyped("feed", &OrderStatusChangedData{
		OrderID: "ord-1",
		Symbol:  "AAPL",
		Status:  "FILLED",
	})

	assert.NotNil(t, received)
	assert.Equal(t, "ord-1", received.Data["order_id"])
	assert.Equal(t, "AAPL", received.Data["symbol"])
	assert.Equal(t, "FILLED", received.Data["status"])
}
