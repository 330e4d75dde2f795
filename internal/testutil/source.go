package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/HerbHall/omicsview/internal/query"
)

// Call is one Fetch made against a Source. It stays pending until the test
// resolves or fails it, or until its context is cancelled.
type Call[T any] struct {
	Desc query.RequestDescriptor

	ctx  context.Context
	done chan callResult[T]
	once sync.Once
}

type callResult[T any] struct {
	page query.Page[T]
	err  error
}

// Resolve completes the call with page. Resolving a call whose context is
// already cancelled is allowed; the result is simply never observed.
func (c *Call[T]) Resolve(page query.Page[T]) {
	c.once.Do(func() { c.done <- callResult[T]{page: page} })
}

// Fail completes the call with err.
func (c *Call[T]) Fail(err error) {
	c.once.Do(func() { c.done <- callResult[T]{err: err} })
}

// Cancelled reports whether the caller cancelled this call's context.
func (c *Call[T]) Cancelled() bool {
	return c.ctx.Err() != nil
}

// Source is a controllable fetch source. Every Fetch is recorded and blocks
// until the test settles it, so responses can be delivered in any order.
type Source[T any] struct {
	mu    sync.Mutex
	calls []*Call[T]
	ch    chan *Call[T]
}

// NewSource returns an empty Source.
func NewSource[T any]() *Source[T] {
	return &Source[T]{ch: make(chan *Call[T], 256)}
}

// Fetch records the call and waits for it to be settled or cancelled.
func (s *Source[T]) Fetch(ctx context.Context, desc query.RequestDescriptor) (query.Page[T], error) {
	call := &Call[T]{Desc: desc, ctx: ctx, done: make(chan callResult[T], 1)}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	s.ch <- call

	select {
	case r := <-call.done:
		return r.page, r.err
	case <-ctx.Done():
		return query.Page[T]{}, ctx.Err()
	}
}

// Next waits for the next Fetch call, failing the test after a timeout.
func (s *Source[T]) Next(t *testing.T) *Call[T] {
	t.Helper()
	select {
	case c := <-s.ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch call")
		return nil
	}
}

// ExpectNone fails the test if a Fetch call arrives within wait.
func (s *Source[T]) ExpectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case c := <-s.ch:
		t.Fatalf("unexpected fetch call: %s", c.Desc)
	case <-time.After(wait):
	}
}

// Calls returns every call recorded so far, in arrival order.
func (s *Source[T]) Calls() []*Call[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Call[T], len(s.calls))
	copy(out, s.calls)
	return out
}
