// Package fetch runs at most one outstanding request per logical slot.
// Starting a new request supersedes the previous one: its context is
// cancelled and whatever it eventually settles with is replaced by
// ErrCancelled.
package fetch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/query"
)

// Source fetches one page of a remote collection.
type Source[T any] interface {
	Fetch(ctx context.Context, desc query.RequestDescriptor) (query.Page[T], error)
}

// SourceFunc adapts a function to Source.
type SourceFunc[T any] func(ctx context.Context, desc query.RequestDescriptor) (query.Page[T], error)

// Fetch implements Source.
func (f SourceFunc[T]) Fetch(ctx context.Context, desc query.RequestDescriptor) (query.Page[T], error) {
	return f(ctx, desc)
}

type slotOptions struct {
	timeout time.Duration
	logger  *zap.Logger
	name    string
}

// Option configures a Slot.
type Option func(*slotOptions)

// WithTimeout bounds each request. A timed-out request fails with a
// NetworkError rather than ErrCancelled.
func WithTimeout(d time.Duration) Option {
	return func(o *slotOptions) { o.timeout = d }
}

// WithLogger attaches a logger; name identifies the slot in log fields.
func WithLogger(l *zap.Logger, name string) Option {
	return func(o *slotOptions) {
		if l != nil {
			o.logger = l
		}
		o.name = name
	}
}

// Slot owns the single live request of one logical operation.
type Slot[T any] struct {
	src     Source[T]
	timeout time.Duration
	logger  *zap.Logger
	name    string

	mu         sync.Mutex
	live       *Pending[T]
	generation uint64
	closed     bool
}

// NewSlot returns a Slot fetching from src.
func NewSlot[T any](src Source[T], opts ...Option) *Slot[T] {
	o := slotOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Slot[T]{
		src:     src,
		timeout: o.timeout,
		logger:  o.logger,
		name:    o.name,
	}
}

// Begin starts fetching desc, cancelling the live request if there is one.
// The returned Pending carries a generation strictly greater than that of
// every earlier request of this slot.
func (s *Slot[T]) Begin(ctx context.Context, desc query.RequestDescriptor) (*Pending[T], error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	prev := s.live
	s.generation++

	var cctx context.Context
	var cancel context.CancelFunc
	if s.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}
	p := &Pending[T]{
		desc:       desc,
		generation: s.generation,
		cancel:     cancel,
		done:       make(chan struct{}),
		started:    time.Now(),
	}
	s.live = p
	s.mu.Unlock()

	if prev != nil && prev.Cancel() {
		s.logger.Debug("request superseded",
			zap.String("slot", s.name),
			zap.Uint64("generation", prev.generation),
			zap.Uint64("superseded_by", p.generation),
		)
	}

	go s.run(cctx, p)
	return p, nil
}

// Execute starts desc and waits for it to settle. A superseded call returns
// ErrCancelled, never its real outcome.
func (s *Slot[T]) Execute(ctx context.Context, desc query.RequestDescriptor) (query.Page[T], error) {
	p, err := s.Begin(ctx, desc)
	if err != nil {
		return query.Page[T]{}, err
	}
	return p.Wait(ctx)
}

func (s *Slot[T]) run(ctx context.Context, p *Pending[T]) {
	page, err := s.src.Fetch(ctx, p.desc)
	p.settle(page, err)

	s.mu.Lock()
	if s.live == p {
		s.live = nil
	}
	s.mu.Unlock()

	_, perr := p.Result()
	switch {
	case perr == nil:
		s.logger.Debug("request completed",
			zap.String("slot", s.name),
			zap.Uint64("generation", p.generation),
			zap.Duration("elapsed", time.Since(p.started)),
		)
	case IsCancelled(perr):
		s.logger.Debug("request cancelled",
			zap.String("slot", s.name),
			zap.Uint64("generation", p.generation),
		)
	default:
		s.logger.Warn("request failed",
			zap.String("slot", s.name),
			zap.Uint64("generation", p.generation),
			zap.Error(perr),
		)
	}
}

// Live returns the live request, or nil when none is outstanding.
func (s *Slot[T]) Live() *Pending[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Generation returns the generation of the most recently started request.
func (s *Slot[T]) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Cancel cancels the live request, if any. Calling it repeatedly is a no-op.
func (s *Slot[T]) Cancel() {
	s.mu.Lock()
	live := s.live
	s.live = nil
	s.mu.Unlock()
	if live != nil {
		live.Cancel()
	}
}

// Close cancels the live request and rejects further requests.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Cancel()
}

// Pending is one request issued through a Slot.
type Pending[T any] struct {
	desc       query.RequestDescriptor
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	started    time.Time

	mu        sync.Mutex
	cancelled bool
	settled   bool
	page      query.Page[T]
	err       error
}

// Descriptor returns the descriptor this request was issued for.
func (p *Pending[T]) Descriptor() query.RequestDescriptor { return p.desc }

// Generation returns the slot generation of this request.
func (p *Pending[T]) Generation() uint64 { return p.generation }

// Done is closed once the request has settled.
func (p *Pending[T]) Done() <-chan struct{} { return p.done }

// Cancel cancels the request and reports whether this call did so.
// Cancelling a settled or already-cancelled request is a no-op.
func (p *Pending[T]) Cancel() bool {
	p.mu.Lock()
	if p.settled || p.cancelled {
		p.mu.Unlock()
		return false
	}
	p.cancelled = true
	p.mu.Unlock()
	p.cancel()
	return true
}

// Wait blocks until the request settles or ctx is done.
func (p *Pending[T]) Wait(ctx context.Context) (query.Page[T], error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		return query.Page[T]{}, Classify(ctx.Err())
	}
}

// Result returns the settled outcome. Before settlement it returns a zero
// page and a nil error.
func (p *Pending[T]) Result() (query.Page[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page, p.err
}

func (p *Pending[T]) settle(page query.Page[T], err error) {
	p.mu.Lock()
	switch {
	case p.cancelled:
		p.err = ErrCancelled
	case err != nil:
		p.err = Classify(err)
	default:
		p.page = page
	}
	p.settled = true
	p.mu.Unlock()

	p.cancel()
	close(p.done)
}
