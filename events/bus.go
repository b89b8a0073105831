package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers
// Usage: bus.Publish(StateChangedEvent{...})
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case StateChangedEvent:
		event.Publish(b.dispatcher, e)
	case ProbeResultEvent:
		event.Publish(b.dispatcher, e)
	case ReconnectAttemptEvent:
		event.Publish(b.dispatcher, e)
	case ReaperSweepEvent:
		event.Publish(b.dispatcher, e)
	case NetworkChangedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type determines which events it receives.
// Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e ProbeResultEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProbeResultEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReconnectAttemptEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ReaperSweepEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(NetworkChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		// Unrecognized handler type, nothing to unsubscribe.
		return func() {}
	}
}
