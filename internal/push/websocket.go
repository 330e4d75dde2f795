package push

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/version"
)

// WebSocket reads notification frames from a websocket endpoint and
// reconnects with backoff when the connection drops.
type WebSocket struct {
	url  string
	opts options
	emitter
}

// Compile-time interface check.
var _ Source = (*WebSocket)(nil)

// NewWebSocket returns a source reading from url (ws:// or wss://).
func NewWebSocket(url string, bus event.Publisher, opts ...Option) *WebSocket {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	return &WebSocket{
		url:  url,
		opts: o,
		emitter: emitter{
			bus:     bus,
			metrics: o.metrics,
			logger:  o.logger.With(zap.String("push_url", url)),
			source:  "push.websocket",
		},
	}
}

// Run connects and reads frames until ctx is done. It returns nil on
// cancellation; connection failures are retried, never returned.
func (w *WebSocket) Run(ctx context.Context) error {
	delay := w.opts.reconnectDelay
	for {
		connected, err := w.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			delay = w.opts.reconnectDelay
		}
		w.logger.Warn("push connection lost, reconnecting",
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if !sleep(ctx, delay) {
			return nil
		}
		delay = backoff(delay, w.opts.maxDelay)
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (w *WebSocket) session(ctx context.Context) (connected bool, err error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, w.url, &websocket.DialOptions{
		HTTPHeader: http.Header{"User-Agent": []string{version.UserAgent()}},
	})
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()
	w.logger.Info("push connected")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, errors.New("server closed the connection")
			}
			return true, err
		}
		if typ != websocket.MessageText {
			continue
		}
		msg, err := Decode(data)
		if err != nil {
			w.logger.Debug("ignoring push frame", zap.Error(err))
			continue
		}
		w.emit(ctx, msg.Command)
	}
}
