package events

import (
	"sync"
	"time"
)

// Kind is the mutation carried by a collection event.
type Kind string

const (
	KindAdd    Kind = "add"
	KindRemove Kind = "remove"
	KindChange Kind = "change"
	KindReset  Kind = "reset"
)

// TypeRefresh is published by availability managers when a date range needs redrawing.
const TypeRefresh = "availability.refresh"

// Event represents a lightweight domain event.
type Event struct {
	Type    string
	Kind    Kind
	Payload any
	// Previous holds the snapshot before a change.
	Previous  any
	CreatedAt time.Time
}

// Name builds the event type of a collection mutation, e.g. "downtimes.change".
func Name(topic string, kind Kind) string {
	return topic + "." + string(kind)
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
// A nil *EventBus accepts subscriptions and publications and drops them.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for every mutation kind of a topic.
func (b *EventBus) SubscribeAll(topic string, handler EventHandler) {
	for _, k := range []Kind{KindAdd, KindRemove, KindChange, KindReset} {
		b.Subscribe(Name(topic, k), handler)
	}
}

// Publish notifies subscribers of the event type and returns the first handler error.
func (b *EventBus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
