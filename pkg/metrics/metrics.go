// Package metrics defines the Prometheus collectors of the index service and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	EditsTotal           *prometheus.CounterVec
	EditReorders         prometheus.Histogram
	UndosTotal           prometheus.Counter
	BWTRuns              prometheus.Gauge
	TextLength           prometheus.Gauge
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
	EventsAppliedTotal   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil registerer
// selects the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rindex_queries_total",
				Help: "Total index queries by kind (rank, count, locate) and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rindex_query_latency_seconds",
				Help:    "Index query latency in seconds.",
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"kind"},
		),
		EditsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rindex_edits_total",
				Help: "Total edits by operation (insert, delete) and status.",
			},
			[]string{"op", "status"},
		),
		EditReorders: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rindex_edit_reorders",
				Help:    "BWT rows moved per committed edit.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		UndosTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rindex_undos_total",
				Help: "Total edits reverted through undo.",
			},
		),
		BWTRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rindex_bwt_runs",
				Help: "Current number of BWT runs.",
			},
		),
		TextLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rindex_text_length",
				Help: "Current indexed text length.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of locate cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of locate cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rindex_events_published_total",
				Help: "Edit events published to Kafka by status.",
			},
			[]string{"status"},
		),
		EventsAppliedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rindex_events_applied_total",
				Help: "Edit events applied by a follower by status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.EditsTotal,
		m.EditReorders,
		m.UndosTotal,
		m.BWTRuns,
		m.TextLength,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsPublishedTotal,
		m.EventsAppliedTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
