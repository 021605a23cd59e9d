// Package metrics exposes Prometheus instrumentation for rate limit decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcomes used as the "outcome" label.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeError      = "error"
	OutcomeFailedOpen = "failed_open"
)

const namespace = "ratelimit"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Decisions    *prometheus.CounterVec
	StoreLatency prometheus.Histogram
	Published    *prometheus.CounterVec
}

// New creates a registry with Go and process collectors plus the decision metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Rate limit decisions by outcome.",
		}, []string{"outcome"}),
		StoreLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_duration_seconds",
			Help:      "Latency of counter store acquire calls.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decision_events_total",
			Help:      "Decision events handed to the analytics stream by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Decisions,
		m.StoreLatency,
		m.Published,
	)

	return m
}

// RecordDecision increments the decision counter for outcome and observes
// how long the store took to answer.
func (m *Metrics) RecordDecision(outcome string, took time.Duration) {
	m.Decisions.WithLabelValues(outcome).Inc()
	m.StoreLatency.Observe(took.Seconds())
}

// RecordPublish counts a decision event publication attempt.
func (m *Metrics) RecordPublish(err error) {
	if err != nil {
		m.Published.WithLabelValues("failed").Inc()

		return
	}

	m.Published.WithLabelValues("ok").Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
