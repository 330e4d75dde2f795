// Package server is the development stub of the research API: fixture
// collections with server-side paging, a gene network endpoint and a
// websocket push channel driven by touch requests.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/version"
)

// Paths served besides the collections.
const (
	PathHealth  = "/api/v1/health"
	PathTouch   = "/api/v1/touch/{topic}"
	PathPush    = "/ws"
	PathNetwork = "/api/gene-associations-network"
)

// HeaderRequestID correlates a request with the server log.
const HeaderRequestID = "X-Request-ID"

// Resource is a collection endpoint.
type Resource interface {
	http.Handler
	Path() string
	Topic() string
	Len() int
	Truncate(n int)
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every API response by d, or until the client gives up.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithRateLimit answers API requests above r per second with 429.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) { s.limiter = rate.NewLimiter(r, burst) }
}

// WithBus sets the bus touch requests are published on. The hub always
// subscribes to it.
func WithBus(b *event.Bus) Option {
	return func(s *Server) { s.bus = b }
}

// Server is the stub API server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	hub        *Hub
	bus        *event.Bus
	resources  []Resource
	latency    time.Duration
	limiter    *rate.Limiter
	unsub      func()
}

// New creates a server exposing resources and the network endpoint.
func New(addr string, resources []Resource, network http.Handler, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	s := &Server{
		logger:    logger,
		mux:       mux,
		hub:       NewHub(logger),
		resources: resources,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bus == nil {
		s.bus = event.NewBus(logger)
	}
	s.unsub = s.bus.SubscribeAll(func(ctx context.Context, e event.Event) {
		n := s.hub.Broadcast(ctx, e.Topic)
		s.logger.Info("push signal sent", zap.String("topic", e.Topic), zap.Int("clients", n))
	})

	// No read or write timeout: they would also cut hijacked push connections.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.registerCoreRoutes(network)
	s.mountResources()
	return s
}

func (s *Server) registerCoreRoutes(network http.Handler) {
	s.mux.HandleFunc("GET "+PathHealth, s.handleHealth)
	s.mux.HandleFunc("POST "+PathTouch, s.handleTouch)
	s.mux.Handle("GET "+PathPush, s.hub)
	s.mux.HandleFunc("/", notFound)
	if network != nil {
		s.mux.Handle("GET "+PathNetwork, s.delayed(network))
	}
}

func (s *Server) mountResources() {
	for _, r := range s.resources {
		pattern := "GET " + r.Path()
		s.mux.Handle(pattern, s.delayed(r))
		s.logger.Debug("mounted collection",
			zap.String("pattern", pattern),
			zap.String("topic", r.Topic()),
			zap.Int("rows", r.Len()),
		)
	}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		start := time.Now()
		s.mux.ServeHTTP(w, r)
		s.logger.Debug("request served",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("query", r.URL.RawQuery),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// delayed applies the rate limit and the simulated latency.
func (s *Server) delayed(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			rateLimited(w, r, s.tokenInterval())
			return
		}
		if s.latency > 0 {
			t := time.NewTimer(s.latency)
			defer t.Stop()
			select {
			case <-t.C:
			case <-r.Context().Done():
				s.logger.Debug("client abandoned request", zap.String("path", r.URL.Path))
				return
			}
		}
		h.ServeHTTP(w, r)
	})
}

// tokenInterval is how long the limiter takes to earn one token; zero when
// it never refills.
func (s *Server) tokenInterval() time.Duration {
	l := s.limiter.Limit()
	if l <= 0 || l == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l))
}

// Hub returns the push hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting stub server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown disconnects push clients and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down stub server")
	s.unsub()
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Omicsview-Version", version.Short())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"service":      "omicsview-stub",
		"version":      version.Current(),
		"push_clients": s.hub.Len(),
	})
}

type touchResponse struct {
	Topic     string         `json:"topic"`
	Clients   int            `json:"clients"`
	Truncated map[string]int `json:"truncated,omitempty"`
}

// handleTouch announces a change on a topic. With ?keep=N every collection
// following the topic is first cut down to N rows.
func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	resp := touchResponse{Topic: topic}

	if keep := r.URL.Query().Get("keep"); keep != "" {
		n, err := strconv.Atoi(keep)
		if err != nil || n < 0 {
			badRequest(w, r, fmt.Sprintf("keep must be a non-negative integer, got %q", keep))
			return
		}
		resp.Truncated = make(map[string]int)
		for _, res := range s.resources {
			if res.Topic() == topic {
				res.Truncate(n)
				resp.Truncated[res.Path()] = res.Len()
			}
		}
	}

	resp.Clients = s.hub.Len()
	if err := s.bus.Publish(r.Context(), event.Event{Topic: topic, Source: "stub.touch", Timestamp: time.Now()}); err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}
