package event

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Handler receives every published event of the type it subscribed to.
// Handlers run on the publisher's goroutine; long work belongs elsewhere.
type Handler func(ctx context.Context, event Event) error

// Bus carries download and extraction progress from the worker callbacks to
// the websocket hub without coupling the two.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())
}

// NewBus returns a synchronous in-memory bus.
func NewBus() Bus {
	return &memoryBus{
		handlers: make(map[EventType][]subscription),
	}
}

type subscription struct {
	id      uint64
	handler Handler
}

type memoryBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]subscription
	lastID   uint64
}

// Publish stamps the event if needed and delivers it to every current
// subscriber in order. Handler errors are logged, never returned; one slow
// or broken consumer must not stall a worker loop.
func (b *memoryBus) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[event.Type]))
	copy(subs, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			log.Error().Err(err).
				Str("event", string(event.Type)).
				Msg("event handler error")
		}
	}
	return nil
}

func (b *memoryBus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	b.lastID++
	id := b.lastID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{
		id:      id,
		handler: handler,
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}
