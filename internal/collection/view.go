// Package collection keeps a paginated, sortable, filterable and searchable
// view over a server-held collection consistent with the latest user intent.
//
// Every state change derives a new query.RequestDescriptor and issues it
// through a fetch.Slot, superseding whatever request was in flight. Responses
// are applied only when their generation is still current, so an older
// response can never overwrite newer state.
package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/debounce"
	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/fetch"
	"github.com/HerbHall/omicsview/internal/metrics"
	"github.com/HerbHall/omicsview/internal/query"
)

// Commands is the capability a composing UI drives a view through.
type Commands interface {
	SetPage(n int) error
	SetSort(field string, ascending bool) error
	SetFilter(key, value string) error
	SetSearchText(text string)
	ClearSearch() error
	Refresh() error
	OnExternalUpdateSignal(topic string)
}

// Compile-time interface check.
var _ Commands = (*View[struct{}])(nil)

// Notifier surfaces unexpected failures to the user. Cancellations are never
// passed to it.
type Notifier interface {
	NotifyError(view string, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(view string, err error)

// NotifyError implements Notifier.
func (f NotifierFunc) NotifyError(view string, err error) { f(view, err) }

// State is a point-in-time copy of a view.
type State[T any] struct {
	Descriptor query.RequestDescriptor
	Page       query.Page[T]
	PageCount  int
	Loading    bool
	// Resolved is set once any response has been applied.
	Resolved bool
	// Empty is set when the last applied response held no rows at all.
	Empty bool
	// Err is the last surfaced failure, cleared by the next success.
	Err        error
	Generation uint64
}

type viewOptions struct {
	logger   *zap.Logger
	clock    debounce.Clock
	notifier Notifier
	metrics  *metrics.Metrics
	bus      event.Subscriber
	timeout  time.Duration
}

// Option configures a View.
type Option func(*viewOptions)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *viewOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source of the search debouncer.
func WithClock(c debounce.Clock) Option {
	return func(o *viewOptions) { o.clock = c }
}

// WithNotifier sets where failures are surfaced.
func WithNotifier(n Notifier) Option {
	return func(o *viewOptions) { o.notifier = n }
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *viewOptions) { o.metrics = m }
}

// WithBus subscribes the view to its configured push topic on Start.
func WithBus(b event.Subscriber) Option {
	return func(o *viewOptions) { o.bus = b }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *viewOptions) { o.timeout = d }
}

// issueMode controls how a descriptor is issued.
type issueMode struct {
	// force issues even when the descriptor equals the current one.
	force bool
	// silent leaves the loading flag untouched.
	silent bool
}

// View is a remote collection view over rows of type T. All methods are safe
// for concurrent use. Close must be called to release the view.
type View[T any] struct {
	cfg      Config
	slot     *fetch.Slot[T]
	search   *debounce.Debouncer[searchEdit]
	logger   *zap.Logger
	notifier Notifier
	metrics  *metrics.Metrics
	bus      event.Subscriber

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	desc       query.RequestDescriptor
	page       query.Page[T]
	resolved   bool
	loading    bool
	err        error
	generation uint64
	searchSeq  uint64
	inFlight   bool
	started    bool
	closed     bool
	unsub      func()
	stopWatch  func() bool

	listenerMu sync.Mutex
	listeners  map[uint64]func(State[T])
	nextID     uint64
	changed    chan struct{}
	quit       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

// New returns a view over src. The view is idle until Start.
func New[T any](cfg Config, src fetch.Source[T], opts ...Option) (*View[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("collection config: %w", err)
	}
	cfg.applyDefaults()

	o := viewOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(zap.String("view", cfg.Name))

	slotOpts := []fetch.Option{fetch.WithLogger(logger, cfg.Name)}
	if o.timeout > 0 {
		slotOpts = append(slotOpts, fetch.WithTimeout(o.timeout))
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View[T]{
		cfg:       cfg,
		slot:      fetch.NewSlot(src, slotOpts...),
		logger:    logger,
		notifier:  o.notifier,
		metrics:   o.metrics,
		bus:       o.bus,
		ctx:       ctx,
		cancel:    cancel,
		desc:      cfg.initialDescriptor(),
		listeners: make(map[uint64]func(State[T])),
		changed:   make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	debounceOpts := []debounce.Option{debounce.WithLogger(logger, "search")}
	if o.clock != nil {
		debounceOpts = append(debounceOpts, debounce.WithClock(o.clock))
	}
	v.search = debounce.New(cfg.QuietInterval, v.applySearch, debounceOpts...)

	go v.dispatch()
	return v, nil
}

// Name returns the view name.
func (v *View[T]) Name() string { return v.cfg.Name }

// Config returns the view configuration.
func (v *View[T]) Config() Config { return v.cfg }

// Start issues the initial request and subscribes to the push topic.
// Requests run under ctx; the view closes itself when ctx is done.
func (v *View[T]) Start(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.started {
		v.mu.Unlock()
		return ErrStarted
	}
	v.started = true
	v.cancel()
	v.ctx, v.cancel = context.WithCancel(ctx)
	if v.bus != nil && v.cfg.Topic != "" {
		v.unsub = v.bus.Subscribe(v.cfg.Topic, func(_ context.Context, e event.Event) {
			v.OnExternalUpdateSignal(e.Topic)
		})
	}
	v.stopWatch = context.AfterFunc(ctx, v.Close)
	v.issueLocked(v.desc, issueMode{force: true})
	v.mu.Unlock()

	v.logger.Info("view started",
		zap.String("endpoint", v.cfg.Endpoint),
		zap.String("topic", v.cfg.Topic),
	)
	return nil
}

// SetPage moves to page n, clamped to the last page implied by the last
// known total count.
func (v *View[T]) SetPage(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: got %d", query.ErrInvalidPage, n)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	if v.resolved {
		if last := v.page.PageCount(v.desc.PageSize()); n > last {
			v.logger.Debug("page clamped", zap.Int("requested", n), zap.Int("page", last))
			n = last
		}
	}
	v.issueLocked(v.desc.WithPage(n), issueMode{})
	return nil
}

// SetSort orders by field and returns to page 1.
func (v *View[T]) SetSort(field string, ascending bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.issueLocked(v.desc.WithSort(field, ascending).WithPage(1), issueMode{})
	return nil
}

// SetFilter sets a declared filter and returns to page 1. The filter's
// default value removes it from the request.
func (v *View[T]) SetFilter(key, value string) error {
	def, ok := v.cfg.filter(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, key)
	}
	if !def.allows(value) {
		return fmt.Errorf("%w: %s=%q", ErrInvalidFilterValue, key, value)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	desc := v.desc.WithoutFilter(key)
	if value != def.Default {
		desc = desc.WithFilter(key, value)
	}
	v.issueLocked(desc.WithPage(1), issueMode{})
	return nil
}

// searchEdit is a search text tagged with the edit sequence it belongs to.
type searchEdit struct {
	text string
	seq  uint64
}

// SetSearchText records a search edit. The request is built and issued,
// on page 1, only once edits have been quiet for the configured interval.
func (v *View[T]) SetSearchText(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.searchSeq++
	v.search.Observe(searchEdit{text: text, seq: v.searchSeq})
}

// ClearSearch drops any pending search edit and clears the search at once.
// An edit whose timer already fired is dropped too.
func (v *View[T]) ClearSearch() error {
	v.search.Cancel()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.searchSeq++
	v.issueLocked(v.desc.WithSearch("").WithPage(1), issueMode{})
	return nil
}

func (v *View[T]) applySearch(e searchEdit) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || e.seq != v.searchSeq {
		return
	}
	v.issueLocked(v.desc.WithSearch(e.text).WithPage(1), issueMode{})
}

// Refresh re-issues the current descriptor.
func (v *View[T]) Refresh() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrClosed
	}
	v.issueLocked(v.desc, issueMode{force: true})
	return nil
}

// OnExternalUpdateSignal silently re-fetches the current page when topic is
// the view's push topic. Other topics are ignored.
func (v *View[T]) OnExternalUpdateSignal(topic string) {
	if v.cfg.Topic == "" || topic != v.cfg.Topic {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.started {
		return
	}
	v.logger.Debug("push refresh", zap.String("topic", topic), zap.Int("page", v.desc.Page()))
	v.issueLocked(v.desc, issueMode{force: true, silent: true})
}

// issueLocked makes desc current and, once started, fetches it. A
// descriptor equal to the current one is skipped unless forced, while it is
// in flight or already shown without error.
func (v *View[T]) issueLocked(desc query.RequestDescriptor, mode issueMode) {
	if !mode.force && desc.Equal(v.desc) && (v.inFlight || (v.resolved && v.err == nil)) {
		return
	}
	v.desc = desc
	if !v.started {
		v.markChangedLocked()
		return
	}

	p, err := v.slot.Begin(v.ctx, desc)
	if err != nil {
		v.logger.Debug("issue rejected", zap.Error(err))
		return
	}
	v.generation = p.Generation()
	v.inFlight = true
	if !mode.silent {
		v.loading = true
	}
	v.markChangedLocked()

	go v.await(p, mode, time.Now())
}

func (v *View[T]) await(p *fetch.Pending[T], mode issueMode, started time.Time) {
	<-p.Done()
	page, err := p.Result()
	elapsed := time.Since(started)

	v.mu.Lock()
	if v.closed || p.Generation() != v.generation {
		v.mu.Unlock()
		outcome := metrics.OutcomeStale
		if fetch.IsCancelled(err) {
			outcome = metrics.OutcomeCancelled
		}
		v.metrics.ObserveRequest(v.cfg.Name, outcome, elapsed)
		v.logger.Debug("response discarded",
			zap.Uint64("generation", p.Generation()),
			zap.String("outcome", outcome),
		)
		return
	}

	if fetch.IsCancelled(err) {
		// Only teardown cancels the current request.
		v.inFlight = false
		v.mu.Unlock()
		v.metrics.ObserveRequest(v.cfg.Name, metrics.OutcomeCancelled, elapsed)
		return
	}

	v.inFlight = false
	if err != nil {
		v.loading = false
		v.err = err
		v.markChangedLocked()
		v.mu.Unlock()

		v.metrics.ObserveRequest(v.cfg.Name, metrics.OutcomeError, elapsed)
		v.logger.Warn("page request failed",
			zap.Uint64("generation", p.Generation()),
			zap.String("request", p.Descriptor().String()),
			zap.Error(err),
		)
		if v.notifier != nil {
			v.notifier.NotifyError(v.cfg.Name, err)
		}
		return
	}

	v.page = page
	v.resolved = true
	v.err = nil
	v.loading = false
	if last := page.PageCount(v.desc.PageSize()); v.desc.Page() > last {
		v.logger.Info("current page vanished, clamping",
			zap.Int("page", v.desc.Page()),
			zap.Int("last_page", last),
			zap.Int("total_count", page.TotalCount),
		)
		v.issueLocked(v.desc.WithPage(last), issueMode{force: true, silent: mode.silent})
	}
	v.markChangedLocked()
	v.mu.Unlock()

	v.metrics.ObserveRequest(v.cfg.Name, metrics.OutcomeOK, elapsed)
}

// Snapshot returns the current state.
func (v *View[T]) Snapshot() State[T] {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View[T]) snapshotLocked() State[T] {
	return State[T]{
		Descriptor: v.desc,
		Page:       v.page,
		PageCount:  v.page.PageCount(v.desc.PageSize()),
		Loading:    v.loading,
		Resolved:   v.resolved,
		Empty:      v.resolved && v.page.Empty(),
		Err:        v.err,
		Generation: v.generation,
	}
}

// Subscribe registers fn to receive state changes. Deliveries happen on a
// single goroutine, in order, and coalesce: fn always eventually sees the
// latest state but may skip intermediate ones. fn may call view commands.
func (v *View[T]) Subscribe(fn func(State[T])) (unsubscribe func()) {
	v.listenerMu.Lock()
	v.nextID++
	id := v.nextID
	v.listeners[id] = fn
	v.listenerMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.listenerMu.Lock()
			delete(v.listeners, id)
			v.listenerMu.Unlock()
		})
	}
}

func (v *View[T]) markChangedLocked() {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

func (v *View[T]) dispatch() {
	defer close(v.done)
	for {
		select {
		case <-v.quit:
			return
		case <-v.changed:
			st := v.Snapshot()
			v.listenerMu.Lock()
			fns := make([]func(State[T]), 0, len(v.listeners))
			for _, fn := range v.listeners {
				fns = append(fns, fn)
			}
			v.listenerMu.Unlock()
			for _, fn := range fns {
				fn(st)
			}
		}
	}
}

// Close disposes the view: the pending search edit is dropped, the live
// request is cancelled and the push subscription is removed. Close is
// idempotent and does not wait for subscribers to finish.
func (v *View[T]) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		v.closed = true
		v.loading = false
		unsub, stopWatch, cancel := v.unsub, v.stopWatch, v.cancel
		v.mu.Unlock()

		v.search.Close()
		v.slot.Close()
		cancel()
		if unsub != nil {
			unsub()
		}
		if stopWatch != nil {
			stopWatch()
		}
		close(v.quit)
		v.logger.Debug("view closed")
	})
}

// Done is closed once the view has been closed and its dispatcher stopped.
func (v *View[T]) Done() <-chan struct{} { return v.done }
