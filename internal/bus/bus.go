// Package bus provides the synchronous in-process event bus that connects
// the executor, cost tracker, budget enforcer, and monitor.
package bus

import (
	"log"
	"sync"
)

// Handler receives an event payload. Handlers run inline within Emit,
// in subscription order.
type Handler func(payload any)

// Bus is a synchronous typed publish/subscribe bus. One Bus is created per
// execution session; components register typed handlers instead of sharing
// a global emitter.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Topic][]Handler
}

// New creates a new empty Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[Topic][]Handler),
	}
}

// On registers a handler for the given topic.
func (b *Bus) On(topic Topic, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Emit delivers payload to every handler subscribed to topic, inline and
// in subscription order. A panicking handler is recovered and logged so one
// subscriber cannot take down the dispatch path.
func (b *Bus) Emit(topic Topic, payload any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[bus] handler panic on %s: %v", topic, r)
				}
			}()
			h(payload)
		}()
	}
}

// HandlerCount returns the number of handlers subscribed to topic.
func (b *Bus) HandlerCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
