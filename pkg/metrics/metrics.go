// Package metrics defines the Prometheus collectors for the retrieval
// router and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the router platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	RoutingDecisionsTotal *prometheus.CounterVec
	RouterWeight          *prometheus.GaugeVec
	RouterUpdatesTotal    *prometheus.CounterVec

	RetrievalLatency      *prometheus.HistogramVec
	RetrievalResultsCount prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter

	EvalRunsTotal  prometheus.Counter
	EvalScore      prometheus.Histogram
	RunLogFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		RoutingDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routing_decisions_total",
				Help: "Routing decisions by chosen strategy.",
			},
			[]string{"strategy"},
		),
		RouterWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "router_weight",
				Help: "Learned additive bias per strategy.",
			},
			[]string{"strategy"},
		),
		RouterUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_updates_total",
				Help: "Router weight updates by outcome (applied, noop).",
			},
			[]string{"outcome"},
		),
		RetrievalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "retrieval_latency_seconds",
				Help:    "Retrieval latency in seconds per strategy.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"strategy"},
		),
		RetrievalResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retrieval_results_count",
				Help:    "Number of results returned per retrieval.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of retrieval cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of retrieval cache misses.",
			},
		),
		EvalRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "eval_runs_total",
				Help: "Total number of labeled evaluation runs.",
			},
		),
		EvalScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eval_score",
				Help:    "Evaluation score of the chosen strategy.",
				Buckets: []float64{0, 0.1, 0.3, 0.5, 0.7, 0.9, 1},
			},
		),
		RunLogFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "run_log_failures_total",
				Help: "Telemetry run-log writes that returned an error.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RoutingDecisionsTotal,
		m.RouterWeight,
		m.RouterUpdatesTotal,
		m.RetrievalLatency,
		m.RetrievalResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EvalRunsTotal,
		m.EvalScore,
		m.RunLogFailures,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
