// Package store holds in-memory collections that publish their mutations.
package store

import (
	"sync"

	"github.com/rs/zerolog"

	"planboard/internal/events"
)

// Collection is an ordered set of items with a generation counter. Every mutation
// bumps Version and publishes an event named "<topic>.<kind>" on the bus.
type Collection[T any] struct {
	mu      sync.RWMutex
	items   []T
	version uint64
	topic   string
	bus     *events.EventBus
	logger  *zerolog.Logger
}

// NewCollection builds a collection. bus may be nil for detached copies.
func NewCollection[T any](topic string, bus *events.EventBus, items ...T) *Collection[T] {
	return &Collection[T]{
		items: append([]T(nil), items...),
		topic: topic,
		bus:   bus,
	}
}

// SetLogger reports handler failures on l. Call it before the collection is
// shared.
func (c *Collection[T]) SetLogger(l *zerolog.Logger) {
	c.logger = l
}

// All returns a copy of the items.
func (c *Collection[T]) All() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]T(nil), c.items...)
}

// Filter returns the items matching keep.
func (c *Collection[T]) Filter(keep func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []T
	for _, it := range c.items {
		if keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Find returns the first item matching pred.
func (c *Collection[T]) Find(pred func(T) bool) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if pred(it) {
			return it, true
		}
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Version changes after every mutation.
func (c *Collection[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Collection[T]) Add(items ...T) {
	if len(items) == 0 {
		return
	}
	c.mu.Lock()
	c.items = append(c.items, items...)
	c.version++
	c.mu.Unlock()

	for _, it := range items {
		c.publish(events.KindAdd, it, nil)
	}
}

// RemoveFunc deletes the items matching pred and returns them.
func (c *Collection[T]) RemoveFunc(pred func(T) bool) []T {
	c.mu.Lock()
	var removed []T
	kept := c.items[:0:0]
	for _, it := range c.items {
		if pred(it) {
			removed = append(removed, it)
			continue
		}
		kept = append(kept, it)
	}
	if len(removed) > 0 {
		c.items = kept
		c.version++
	}
	c.mu.Unlock()

	for _, it := range removed {
		c.publish(events.KindRemove, it, nil)
	}
	return removed
}

// Replace swaps the first item matching pred for next and returns the previous one.
func (c *Collection[T]) Replace(pred func(T) bool, next T) (T, bool) {
	c.mu.Lock()
	var prev T
	found := false
	for i, it := range c.items {
		if pred(it) {
			prev = it
			c.items[i] = next
			c.version++
			found = true
			break
		}
	}
	c.mu.Unlock()

	if found {
		c.publish(events.KindChange, next, prev)
	}
	return prev, found
}

// Touch records an in-place change made to a pointer item.
func (c *Collection[T]) Touch(item, previous T) {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
	c.publish(events.KindChange, item, previous)
}

// Reset replaces every item.
func (c *Collection[T]) Reset(items []T) {
	c.mu.Lock()
	c.items = append([]T(nil), items...)
	c.version++
	c.mu.Unlock()

	c.publish(events.KindReset, items, nil)
}

func (c *Collection[T]) publish(kind events.Kind, payload, previous any) {
	if c.bus == nil || c.topic == "" {
		return
	}
	e := events.Event{
		Type:     events.Name(c.topic, kind),
		Kind:     kind,
		Payload:  payload,
		Previous: previous,
	}
	if err := c.bus.Publish(e); err != nil && c.logger != nil {
		c.logger.Warn().Err(err).Str("event", e.Type).Msg("event handler failed")
	}
}
