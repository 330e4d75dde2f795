package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/omicsview/internal/event"
)

// MQTT subscribes to <prefix>/# on a broker. The topic suffix names the
// update, so "omicsview/update_biomarkers" emits "update_biomarkers". A
// {"command": ...} payload overrides the suffix.
type MQTT struct {
	broker string
	prefix string
	opts   options
	emitter
}

// Compile-time interface check.
var _ Source = (*MQTT)(nil)

// NewMQTT returns a source for broker (e.g. tcp://localhost:1883).
func NewMQTT(broker, prefix string, bus event.Publisher, opts ...Option) *MQTT {
	o := defaults()
	for _, opt := range opts {
		opt(&o)
	}
	if o.clientID == "" {
		o.clientID = "omicsview-" + uuid.NewString()[:8]
	}
	return &MQTT{
		broker: broker,
		prefix: strings.Trim(prefix, "/"),
		opts:   o,
		emitter: emitter{
			bus:     bus,
			metrics: o.metrics,
			logger:  o.logger.With(zap.String("broker", broker)),
			source:  "push.mqtt",
		},
	}
}

// Filter returns the subscription filter.
func (m *MQTT) Filter() string {
	if m.prefix == "" {
		return "#"
	}
	return m.prefix + "/#"
}

func (m *MQTT) clientOptions(ctx context.Context) *mqtt.ClientOptions {
	handler := func(_ mqtt.Client, msg mqtt.Message) { m.handle(ctx, msg) }

	return mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.opts.clientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(m.opts.reconnectDelay).
		SetMaxReconnectInterval(m.opts.maxDelay).
		SetOnConnectHandler(func(c mqtt.Client) {
			token := c.Subscribe(m.Filter(), 1, handler)
			if token.WaitTimeout(10*time.Second) && token.Error() != nil {
				m.logger.Error("mqtt subscribe failed", zap.String("filter", m.Filter()), zap.Error(token.Error()))
				return
			}
			m.logger.Info("push connected", zap.String("filter", m.Filter()))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			m.logger.Warn("push connection lost, reconnecting", zap.Error(err))
		})
}

// Run connects and dispatches messages until ctx is done.
func (m *MQTT) Run(ctx context.Context) error {
	client := mqtt.NewClient(m.clientOptions(ctx))
	token := client.Connect()
	for !token.WaitTimeout(250 * time.Millisecond) {
		if ctx.Err() != nil {
			client.Disconnect(0)
			return nil
		}
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.broker, err)
	}

	<-ctx.Done()
	client.Disconnect(250)
	return nil
}

func (m *MQTT) handle(ctx context.Context, msg mqtt.Message) {
	topic := m.topicOf(msg.Topic(), msg.Payload())
	if topic == "" {
		return
	}
	m.emit(ctx, topic)
}

// topicOf maps an MQTT message to an update topic.
func (m *MQTT) topicOf(mqttTopic string, payload []byte) string {
	if msg, err := Decode(payload); err == nil {
		return msg.Command
	}
	suffix := mqttTopic
	if m.prefix != "" {
		var ok bool
		suffix, ok = strings.CutPrefix(mqttTopic, m.prefix+"/")
		if !ok {
			return ""
		}
	}
	return strings.Trim(suffix, "/")
}
