package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/HerbHall/omicsview/internal/event"
)

// Compile-time interface check.
var _ event.EventBus = (*MockBus)(nil)

// MockBus records published push signals. Subscriptions are accepted but
// never called.
type MockBus struct {
	mu     sync.Mutex
	events []event.Event
}

// NewMockBus returns a new MockBus.
func NewMockBus() *MockBus {
	return &MockBus{}
}

// Publish records an event synchronously.
func (b *MockBus) Publish(_ context.Context, e event.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

// PublishAsync records an event (same as Publish in tests).
func (b *MockBus) PublishAsync(ctx context.Context, e event.Event) {
	_ = b.Publish(ctx, e)
}

// Subscribe returns a no-op unsubscribe function.
func (b *MockBus) Subscribe(string, event.Handler) func() { return func() {} }

// SubscribeAll returns a no-op unsubscribe function.
func (b *MockBus) SubscribeAll(event.Handler) func() { return func() {} }

// Events returns a copy of all recorded events.
func (b *MockBus) Events() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}

// Topics returns the topics of the recorded events in publish order.
func (b *MockBus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Topic
	}
	return out
}

// Reset clears all recorded events.
func (b *MockBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
