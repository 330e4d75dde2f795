// Package metrics exposes Prometheus collectors for view request outcomes
// and push signals.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeCancelled = "cancelled"
	OutcomeStale     = "stale"
	OutcomeError     = "error"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	pushSignals *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omicsview",
			Name:      "requests_total",
			Help:      "Collection page requests by view and outcome.",
		}, []string{"view", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omicsview",
			Name:      "request_duration_seconds",
			Help:      "Latency of collection page requests that were applied or failed.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		pushSignals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omicsview",
			Name:      "push_signals_total",
			Help:      "Push update signals received by topic.",
		}, []string{"topic"}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.pushSignals} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRequest records one settled request.
func (m *Metrics) ObserveRequest(view, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(view, outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeError {
		m.duration.WithLabelValues(view).Observe(elapsed.Seconds())
	}
}

// PushSignal records one received push signal.
func (m *Metrics) PushSignal(topic string) {
	if m == nil {
		return
	}
	m.pushSignals.WithLabelValues(topic).Inc()
}
