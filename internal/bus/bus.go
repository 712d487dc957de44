// Package bus is a synchronous publish/subscribe register that decouples the
// realtime client components from their consumers.
//
// Events are typed values; each variant names its own topic. Handlers run on
// the publisher's goroutine in registration order, and a panicking handler is
// isolated so later handlers still receive the event.
package bus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Topic names an event stream, e.g. "connection.status".
type Topic string

// Event is implemented by every value published on the bus.
type Event interface {
	Topic() Topic
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is safe for concurrent use. The zero value is not usable; call New.
type Bus struct {
	log zerolog.Logger

	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
}

// New creates an empty bus that logs isolated handler failures to log.
func New(log zerolog.Logger) *Bus {
	return &Bus{
		log:  log.With().Str("component", "bus").Logger(),
		subs: make(map[Topic][]subscription),
	}
}

// Subscribe registers h for topic. The returned function removes the
// subscription; calling it more than once is harmless.
func (b *Bus) Subscribe(topic Topic, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// Copy rather than splice in place: a Publish in progress may
			// still be iterating the old slice.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, topic)
			} else {
				b.subs[topic] = next
			}
			return
		}
	}
}

// Publish delivers e to every handler currently subscribed to its topic.
// Handlers may publish or unsubscribe reentrantly.
func (b *Bus) Publish(e Event) {
	topic := e.Topic()
	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(topic, s, e)
	}
}

func (b *Bus) deliver(topic Topic, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("topic", string(topic)).
				Uint64("subscription", s.id).
				Str("panic", fmt.Sprint(r)).
				Msg("event handler failed")
		}
	}()
	s.handler(e)
}

// SubscriberCount returns the number of handlers registered for topic.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// On subscribes a handler typed to a single event variant. The topic is taken
// from T's zero value, so T must report a constant topic.
func On[T Event](b *Bus, fn func(T)) (unsubscribe func()) {
	var zero T
	return b.Subscribe(zero.Topic(), func(e Event) {
		if v, ok := e.(T); ok {
			fn(v)
		}
	})
}
