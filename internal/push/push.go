// Package push turns the server's update notifications into event.Bus
// events. Views subscribe to the topics they care about and refresh
// silently when one arrives.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/event"
	"github.com/HerbHall/omicsview/internal/metrics"
)

// Topics emitted by the research server.
const (
	TopicPredictionExperiment = "update_prediction_experiment"
	TopicBiomarkers           = "update_biomarkers"
	TopicTrainedModels        = "update_trained_models"
)

// Message is the notification frame: {"command": "<topic>"}.
type Message struct {
	Command string `json:"command"`
}

var errEmptyCommand = errors.New("push message has no command")

// Decode parses a notification frame.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	m.Command = strings.TrimSpace(m.Command)
	if m.Command == "" {
		return Message{}, errEmptyCommand
	}
	return m, nil
}

// Source runs a notification channel until ctx is done.
type Source interface {
	Run(ctx context.Context) error
}

type options struct {
	logger         *zap.Logger
	metrics        *metrics.Metrics
	reconnectDelay time.Duration
	maxDelay       time.Duration
	clientID       string
}

func defaults() options {
	return options{
		logger:         zap.NewNop(),
		reconnectDelay: 2 * time.Second,
		maxDelay:       30 * time.Second,
	}
}

// Option configures a Source.
type Option func(*options)

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics counts received signals.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithReconnectDelay sets the initial delay between reconnect attempts. The
// delay doubles after each failed attempt up to 30s.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnectDelay = d
		}
	}
}

// WithClientID sets the MQTT client id.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// emitter publishes received topics to a bus.
type emitter struct {
	bus     event.Publisher
	metrics *metrics.Metrics
	logger  *zap.Logger
	source  string
}

func (e *emitter) emit(ctx context.Context, topic string) {
	e.metrics.PushSignal(topic)
	e.logger.Debug("push signal", zap.String("topic", topic), zap.String("source", e.source))
	if err := e.bus.Publish(ctx, event.Event{Topic: topic, Source: e.source}); err != nil {
		e.logger.Warn("publish push signal", zap.String("topic", topic), zap.Error(err))
	}
}

// backoff doubles d, capped at limit.
func backoff(d, limit time.Duration) time.Duration {
	d *= 2
	if d > limit {
		return limit
	}
	return d
}

// sleep waits for d or until ctx is done, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
