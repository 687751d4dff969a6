package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus collectors for AG-UI traffic.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	events     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	activeRuns prometheus.Gauge
}

// NewMetrics registers the server's collectors, plus the Go and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agbridge",
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "Run requests by transport and outcome.",
			},
			[]string{"transport", "outcome"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "agbridge",
				Subsystem: "server",
				Name:      "events_total",
				Help:      "AG-UI events written to clients, by type.",
			},
			[]string{"type"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "agbridge",
				Subsystem: "server",
				Name:      "run_duration_seconds",
				Help:      "Time spent streaming one run to a client.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "agbridge",
				Subsystem: "server",
				Name:      "active_runs",
				Help:      "Runs currently streaming.",
			},
		),
	}
	reg.MustRegister(
		m.requests, m.events, m.duration, m.activeRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
