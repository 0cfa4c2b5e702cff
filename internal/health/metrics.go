package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the breaker state and transition counts for every
// registered provider, namespaced "llmgateway" the way the teacher's
// PrometheusMetrics namespaces graph execution metrics "langgraph".
type Metrics struct {
	state    *prometheus.GaugeVec
	failures *prometheus.CounterVec
	successes *prometheus.CounterVec
}

// NewMetrics registers the breaker gauges/counters with registry. Pass
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for test isolation.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "llmgateway",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half_open)",
		}, []string{"provider"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmgateway",
			Name:      "breaker_failures_total",
			Help:      "Cumulative failures recorded against a provider's breaker",
		}, []string{"provider"}),
		successes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llmgateway",
			Name:      "breaker_successes_total",
			Help:      "Cumulative successes recorded against a provider's breaker",
		}, []string{"provider"}),
	}
}

// Observe updates the gauges/counters for provider after a RecordSuccess or
// RecordFailure call. The caller passes whether this observation was a
// success so the right counter increments, then the breaker's resulting
// state for the gauge.
func (m *Metrics) Observe(provider string, success bool, state State) {
	if m == nil {
		return
	}
	if success {
		m.successes.WithLabelValues(provider).Inc()
	} else {
		m.failures.WithLabelValues(provider).Inc()
	}
	m.state.WithLabelValues(provider).Set(float64(state))
}
