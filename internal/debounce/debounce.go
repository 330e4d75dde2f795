// Package debounce gates a rapidly changing input so that its consumer only
// sees the value once input has been quiet for a fixed interval.
package debounce

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultQuietInterval is the quiet period used by search inputs.
const DefaultQuietInterval = time.Second

// Clock schedules callbacks. The returned stop function reports whether it
// prevented the callback from running.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// RealClock returns a Clock backed by time.AfterFunc.
func RealClock() Clock { return realClock{} }

type options struct {
	clock  Clock
	logger *zap.Logger
	name   string
}

// Option configures a Debouncer.
type Option func(*options)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger attaches a logger; name identifies the input in log fields.
func WithLogger(l *zap.Logger, name string) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
		o.name = name
	}
}

// Debouncer is a trailing-edge debounce. Each Observe restarts the quiet
// timer; when it expires the callback runs once with the latest value.
// Intermediate values are dropped, never queued.
type Debouncer[V any] struct {
	quiet  time.Duration
	fn     func(V)
	clock  Clock
	logger *zap.Logger
	name   string

	mu      sync.Mutex
	seq     uint64 // invalidates timers that fired while being replaced
	stop    func() bool
	pending bool
	latest  V
	closed  bool
}

// New returns a Debouncer that calls fn after quiet has elapsed without a
// new Observe. A non-positive quiet uses DefaultQuietInterval.
func New[V any](quiet time.Duration, fn func(V), opts ...Option) *Debouncer[V] {
	o := options{clock: realClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if quiet <= 0 {
		quiet = DefaultQuietInterval
	}
	return &Debouncer[V]{
		quiet:  quiet,
		fn:     fn,
		clock:  o.clock,
		logger: o.logger,
		name:   o.name,
	}
}

// Observe records v as the latest value and restarts the quiet timer.
// It is a no-op after Close.
func (d *Debouncer[V]) Observe(v V) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.latest = v
	if d.stop != nil {
		d.stop()
	}
	d.seq++
	seq := d.seq
	d.pending = true
	d.stop = d.clock.AfterFunc(d.quiet, func() { d.fire(seq) })
}

func (d *Debouncer[V]) fire(seq uint64) {
	d.mu.Lock()
	if d.closed || !d.pending || seq != d.seq {
		d.mu.Unlock()
		return
	}
	v := d.latest
	d.pending = false
	d.stop = nil
	d.mu.Unlock()

	d.logger.Debug("debounced input settled", zap.String("input", d.name))
	d.fn(v)
}

// Flush runs the callback immediately with the pending value, if any, and
// reports whether it did.
func (d *Debouncer[V]) Flush() bool {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return false
	}
	d.cancelLocked()
	v := d.latest
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Cancel drops the pending value without calling the callback and reports
// whether anything was pending.
func (d *Debouncer[V]) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return false
	}
	d.cancelLocked()
	return true
}

// Pending reports whether a value is waiting for the quiet period to end.
func (d *Debouncer[V]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close disposes the Debouncer. A pending value is dropped and the callback
// is never invoked again.
func (d *Debouncer[V]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending {
		d.cancelLocked()
	}
	d.closed = true
}

func (d *Debouncer[V]) cancelLocked() {
	if d.stop != nil {
		d.stop()
		d.stop = nil
	}
	d.seq++
	d.pending = false
}
