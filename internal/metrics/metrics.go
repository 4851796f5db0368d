// Package metrics exposes actuation counters and timings in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
)

const namespace = "feeder"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	actuations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inProgress prometheus.Gauge
}

// New creates and registers the feeder collectors along with the standard
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actuations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actuations_total",
				Help:      "Completed actuations by action and result.",
			},
			[]string{"action", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "actuation_duration_seconds",
				Help:      "Wall time of each actuation including the hold.",
				Buckets:   []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 5, 10},
			},
			[]string{"action"},
		),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "actuation_in_progress",
			Help:      "1 while an actuation is holding, 0 otherwise.",
		}),
	}

	m.registry.MustRegister(
		m.actuations,
		m.duration,
		m.inProgress,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-populate label sets so every series is visible from startup.
	for _, a := range feeder.Actions {
		m.actuations.WithLabelValues(string(a), "ok")
		m.actuations.WithLabelValues(string(a), "error")
	}
	return m
}

// Begin marks an actuation as in progress.
func (m *Metrics) Begin(feeder.Action) {
	m.inProgress.Set(1)
}

// Record observes a finished actuation.
func (m *Metrics) Record(ev feeder.Event) {
	result := "ok"
	if !ev.OK() {
		result = "error"
	}
	m.actuations.WithLabelValues(string(ev.Action), result).Inc()
	m.duration.WithLabelValues(string(ev.Action)).Observe(ev.Elapsed.Seconds())
	m.inProgress.Set(0)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
