// Package network drives the gene association network panel: one
// cancellable graph request per panel, a debounced minimum score input and
// a style table handed to whatever renders the graph.
package network

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/client"
	"github.com/HerbHall/omicsview/internal/collection"
	"github.com/HerbHall/omicsview/internal/debounce"
	"github.com/HerbHall/omicsview/internal/fetch"
	"github.com/HerbHall/omicsview/internal/query"
	"github.com/HerbHall/omicsview/pkg/models"
)

// Minimum combined score bounds.
const (
	MinScore                = 1
	MaxScore                = 1000
	DefaultMinCombinedScore = 500
)

// Query parameters of the network endpoint.
const (
	ParamGeneID           = "gene_id"
	ParamMinCombinedScore = "min_combined_score"
)

var (
	ErrScoreOutOfRange = fmt.Errorf("min combined score must be within [%d, %d]", MinScore, MaxScore)
	ErrNoGene          = errors.New("gene id is required")
	ErrClosed          = errors.New("network panel closed")
)

// Request identifies one graph.
type Request struct {
	GeneID           string
	MinCombinedScore int
}

// Values encodes the request as query parameters.
func (r Request) Values() url.Values {
	return url.Values{
		ParamGeneID:           {r.GeneID},
		ParamMinCombinedScore: {strconv.Itoa(r.MinCombinedScore)},
	}
}

// GraphSource fetches the association network around one gene.
type GraphSource interface {
	FetchNetwork(ctx context.Context, req Request) (models.GeneNetwork, error)
}

// Renderer draws a graph with a style table.
type Renderer interface {
	Render(g models.GeneNetwork, styles StyleTable)
}

// HTTPSource reads graphs from the network endpoint, which wraps the
// elements in {"data": {...}}.
type HTTPSource struct {
	client   *client.Client
	endpoint string
}

// NewHTTPSource returns a GraphSource reading endpoint through c.
func NewHTTPSource(c *client.Client, endpoint string) *HTTPSource {
	return &HTTPSource{client: c, endpoint: endpoint}
}

// FetchNetwork implements GraphSource.
func (s *HTTPSource) FetchNetwork(ctx context.Context, req Request) (models.GeneNetwork, error) {
	var env struct {
		Data models.GeneNetwork `json:"data"`
	}
	if err := s.client.Get(ctx, s.endpoint, req.Values(), &env); err != nil {
		return models.GeneNetwork{}, err
	}
	return env.Data, nil
}

// graphSlotSource adapts a GraphSource to fetch.Source so graph requests
// share the slot's supersession rules. The request travels as extra params.
type graphSlotSource struct {
	src GraphSource
}

func (a graphSlotSource) Fetch(ctx context.Context, desc query.RequestDescriptor) (query.Page[models.GeneNetwork], error) {
	req, err := requestOf(desc)
	if err != nil {
		return query.Page[models.GeneNetwork]{}, err
	}
	g, err := a.src.FetchNetwork(ctx, req)
	if err != nil {
		return query.Page[models.GeneNetwork]{}, err
	}
	return query.Page[models.GeneNetwork]{Items: []models.GeneNetwork{g}, TotalCount: 1}, nil
}

func descriptorOf(req Request) query.RequestDescriptor {
	d, _ := query.New(1, 1)
	return d.WithExtraParam(ParamGeneID, req.GeneID).
		WithExtraParam(ParamMinCombinedScore, strconv.Itoa(req.MinCombinedScore))
}

func requestOf(desc query.RequestDescriptor) (Request, error) {
	extra := desc.ExtraParams()
	score, err := strconv.Atoi(extra[ParamMinCombinedScore])
	if err != nil {
		return Request{}, fmt.Errorf("min combined score: %w", err)
	}
	return Request{GeneID: extra[ParamGeneID], MinCombinedScore: score}, nil
}

type panelOptions struct {
	logger   *zap.Logger
	clock    debounce.Clock
	notifier collection.Notifier
	quiet    time.Duration
	timeout  time.Duration
}

// Option configures a Panel.
type Option func(*panelOptions)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *panelOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source of the score debouncer.
func WithClock(c debounce.Clock) Option {
	return func(o *panelOptions) { o.clock = c }
}

// WithNotifier sets where failures are surfaced.
func WithNotifier(n collection.Notifier) Option {
	return func(o *panelOptions) { o.notifier = n }
}

// WithQuietInterval sets the score input debounce interval.
func WithQuietInterval(d time.Duration) Option {
	return func(o *panelOptions) { o.quiet = d }
}

// WithTimeout bounds each graph request.
func WithTimeout(d time.Duration) Option {
	return func(o *panelOptions) { o.timeout = d }
}

// Panel shows the association network of the selected gene. Every new
// selection or score supersedes the request in flight.
type Panel struct {
	slot     *fetch.Slot[models.GeneNetwork]
	renderer Renderer
	styles   StyleTable
	notifier collection.Notifier
	logger   *zap.Logger
	score    *debounce.Debouncer[int]

	ctx    context.Context
	cancel context.CancelFunc

	// renderMu orders renders; the generation is rechecked under it.
	renderMu sync.Mutex

	mu         sync.Mutex
	gene       string
	minScore   int
	generation uint64
	closed     bool
}

// New returns a panel drawing graphs from src with r.
func New(src GraphSource, r Renderer, styles StyleTable, opts ...Option) *Panel {
	o := panelOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	slotOpts := []fetch.Option{fetch.WithLogger(o.logger, "network")}
	if o.timeout > 0 {
		slotOpts = append(slotOpts, fetch.WithTimeout(o.timeout))
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Panel{
		slot:     fetch.NewSlot[models.GeneNetwork](graphSlotSource{src: src}, slotOpts...),
		renderer: r,
		styles:   styles,
		notifier: o.notifier,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
		minScore: DefaultMinCombinedScore,
	}
	debounceOpts := []debounce.Option{debounce.WithLogger(o.logger, "min_combined_score")}
	if o.clock != nil {
		debounceOpts = append(debounceOpts, debounce.WithClock(o.clock))
	}
	p.score = debounce.New(o.quiet, p.applyScore, debounceOpts...)
	return p
}

// Gene returns the selected gene.
func (p *Panel) Gene() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gene
}

// MinCombinedScore returns the applied minimum score.
func (p *Panel) MinCombinedScore() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.minScore
}

// SetGene selects a gene and fetches its network at once.
func (p *Panel) SetGene(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrNoGene
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.gene = id
	p.issueLocked()
	return nil
}

// SetMinCombinedScore records a score edit. The graph is re-fetched once
// edits have been quiet for the debounce interval.
func (p *Panel) SetMinCombinedScore(n int) error {
	if n < MinScore || n > MaxScore {
		return fmt.Errorf("%w: got %d", ErrScoreOutOfRange, n)
	}
	p.score.Observe(n)
	return nil
}

func (p *Panel) applyScore(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || n == p.minScore {
		return
	}
	p.minScore = n
	if p.gene != "" {
		p.issueLocked()
	}
}

func (p *Panel) issueLocked() {
	req := Request{GeneID: p.gene, MinCombinedScore: p.minScore}
	pending, err := p.slot.Begin(p.ctx, descriptorOf(req))
	if err != nil {
		return
	}
	p.generation = pending.Generation()
	p.logger.Debug("network requested",
		zap.String("gene_id", req.GeneID),
		zap.Int("min_combined_score", req.MinCombinedScore),
		zap.Uint64("generation", p.generation),
	)
	go p.await(pending)
}

func (p *Panel) await(pending *fetch.Pending[models.GeneNetwork]) {
	page, err := pending.Wait(context.Background())

	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	p.mu.Lock()
	current := !p.closed && pending.Generation() == p.generation
	p.mu.Unlock()
	if !current || fetch.IsCancelled(err) {
		return
	}
	if err != nil {
		p.logger.Warn("network request failed", zap.Error(err))
		if p.notifier != nil {
			p.notifier.NotifyError("network", err)
		}
		return
	}
	if len(page.Items) == 0 {
		return
	}
	p.renderer.Render(page.Items[0], p.styles)
}

// Close cancels the request in flight and drops pending score edits.
func (p *Panel) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.score.Close()
	p.slot.Close()
	p.cancel()
}
