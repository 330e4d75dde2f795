package server

import (
	"context"
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const hubWriteTimeout = 5 * time.Second

// Hub fans push commands out to every connected websocket client.
type Hub struct {
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewHub returns an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, conns: make(map[string]*websocket.Conn)}
}

// ServeHTTP upgrades the request and holds the connection until the client
// leaves. Client messages are discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	id := uuid.NewString()
	h.mu.Lock()
	h.conns[id] = c
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("push client connected", zap.String("client", id), zap.Int("clients", n))

	defer func() {
		h.mu.Lock()
		delete(h.conns, id)
		h.mu.Unlock()
		_ = c.CloseNow()
		h.logger.Debug("push client disconnected", zap.String("client", id))
	}()

	<-c.CloseRead(r.Context()).Done()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Broadcast sends {"command": topic} to every client and returns how many
// received it.
func (h *Hub) Broadcast(ctx context.Context, topic string) int {
	msg, err := json.Marshal(map[string]string{"command": topic})
	if err != nil {
		return 0
	}

	h.mu.Lock()
	conns := maps.Clone(h.conns)
	h.mu.Unlock()

	sent := 0
	for id, c := range conns {
		wctx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
		err := c.Write(wctx, websocket.MessageText, msg)
		cancel()
		if err != nil {
			h.logger.Debug("push write failed", zap.String("client", id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]*websocket.Conn)
	h.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
