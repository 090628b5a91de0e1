package server

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	phaseSearch   = "search"
	phaseGenerate = "generate"
	phaseSuggest  = "suggest"
)

// Metrics are the prometheus series exported by the streaming endpoints.
type Metrics struct {
	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Registering twice on the same
// registry reuses the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplexity_stream_events_total",
			Help: "Events written to streaming responses.",
		}, []string{"phase", "type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplexity_phase_failures_total",
			Help: "Failed search, generate and suggest requests.",
		}, []string{"phase", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "simplexity_phase_duration_seconds",
			Help:    "Wall time of each phase handler.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"phase"}),
	}
	var err error
	if m.events, err = register(reg, m.events); err != nil {
		return nil, err
	}
	if m.failures, err = register(reg, m.failures); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) event(phase, typ string) { m.events.WithLabelValues(phase, typ).Inc() }

func (m *Metrics) failure(phase, reason string) { m.failures.WithLabelValues(phase, reason).Inc() }

func (m *Metrics) observe(phase string, start time.Time) {
	m.duration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
