// Package metrics exposes Prometheus instrumentation for the control loop:
// tick duration, the active policy, and per-component error counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors registered against a prometheus.Registerer.
type Metrics struct {
	TickDuration  prometheus.Histogram
	ActivePolicy  prometheus.Gauge
	ComponentErrs *prometheus.CounterVec
}

// New creates and registers the collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "p1budget",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single control tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		ActivePolicy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "p1budget",
			Name:      "active_policy_index",
			Help:      "Index of the currently active policy.",
		}),
		ComponentErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "p1budget",
			Name:      "component_errors_total",
			Help:      "Errors returned by a producer, policy or consumer, by name and kind.",
		}, []string{"kind", "name"}),
	}
	reg.MustRegister(m.TickDuration, m.ActivePolicy, m.ComponentErrs)
	return m
}

// ObserveTick records a tick's wall-clock duration.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.TickDuration.Observe(d.Seconds())
}

// SetActivePolicy records the currently active policy index.
func (m *Metrics) SetActivePolicy(index int) {
	m.ActivePolicy.Set(float64(index))
}

// IncError increments the error counter for a producer/policy/consumer by
// kind ("producer", "policy", "consumer") and name.
func (m *Metrics) IncError(kind, name string) {
	m.ComponentErrs.WithLabelValues(kind, name).Inc()
}
