// Package event provides the in-process topic bus that carries push update
// signals from the server's notification channel to the views that follow
// those topics.
package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is a named-topic notification.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// Handler reacts to an event.
type Handler func(ctx context.Context, e Event)

// Publisher is the write side of a Bus.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	PublishAsync(ctx context.Context, e Event)
}

// Subscriber is the read side of a Bus.
type Subscriber interface {
	Subscribe(topic string, h Handler) (unsubscribe func())
	SubscribeAll(h Handler) (unsubscribe func())
}

// EventBus is satisfied by Bus and by test doubles.
type EventBus interface {
	Publisher
	Subscriber
}

// Compile-time interface check.
var _ EventBus = (*Bus)(nil)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to topic subscribers and catch-all subscribers.
// A panicking handler is recovered and logged; remaining handlers still run.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string][]subscription
	all    []subscription
	logger *zap.Logger
}

// NewBus returns an empty Bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics: make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for events with the given topic.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.topics[topic] = append(b.topics[topic], subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.topics[topic] = removeSub(b.topics[topic], id)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
		})
	}
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.all = removeSub(b.all, id)
		})
	}
}

// Publish delivers e to every matching handler before returning.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	for _, h := range b.handlers(e.Topic) {
		b.dispatch(ctx, h, e)
	}
	return nil
}

// PublishAsync delivers e to every matching handler, each on its own goroutine.
func (b *Bus) PublishAsync(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	for _, h := range b.handlers(e.Topic) {
		go b.dispatch(ctx, h, e)
	}
}

func (b *Bus) handlers(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.topics[topic])+len(b.all))
	for _, s := range b.topics[topic] {
		out = append(out, s.handler)
	}
	for _, s := range b.all {
		out = append(out, s.handler)
	}
	return out
}

func (b *Bus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", e.Topic),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	h(ctx, e)
}

func removeSub(subs []subscription, id uint64) []subscription {
	out := subs[:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
