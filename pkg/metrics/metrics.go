// Package metrics defines the Prometheus metric collectors used by the
// server and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	TopicQueriesTotal    *prometheus.CounterVec
	TopicRecoveryLatency *prometheus.HistogramVec
	MemoHitsTotal        *prometheus.CounterVec
	MemoMissesTotal      *prometheus.CounterVec
	BlobHitsTotal        prometheus.Counter
	BlobMissesTotal      prometheus.Counter
	BlobCorruptionsTotal prometheus.Counter
	CorpusBuildSeconds   prometheus.Histogram
	VocabularySize       prometheus.Gauge
	DocumentsIngested    prometheus.Counter
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
		TopicQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "topic_queries_total",
				Help: "Total topic queries by anchor source (default, supplied) and outcome.",
			},
			[]string{"anchor_source", "outcome"},
		),
		TopicRecoveryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "topic_recovery_latency_seconds",
				Help:    "Topic recovery latency in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"cache_status"},
		),
		MemoHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memo_cache_hits_total",
				Help: "In-process memoization hits by function.",
			},
			[]string{"func"},
		),
		MemoMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memo_cache_misses_total",
				Help: "In-process memoization misses by function.",
			},
			[]string{"func"},
		),
		BlobHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blob_cache_hits_total",
				Help: "Durable blob cache hits.",
			},
		),
		BlobMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blob_cache_misses_total",
				Help: "Durable blob cache misses.",
			},
		),
		BlobCorruptionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blob_cache_corruptions_total",
				Help: "Durable blob cache entries discarded as corrupt.",
			},
		),
		CorpusBuildSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "corpus_build_seconds",
				Help:    "Wall-clock time of full corpus builds.",
				Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900},
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vocabulary_size",
				Help: "Number of distinct terms in the active dataset.",
			},
		),
		DocumentsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "documents_ingested_total",
				Help: "Documents read during corpus builds.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.TopicQueriesTotal,
		m.TopicRecoveryLatency,
		m.MemoHitsTotal,
		m.MemoMissesTotal,
		m.BlobHitsTotal,
		m.BlobMissesTotal,
		m.BlobCorruptionsTotal,
		m.CorpusBuildSeconds,
		m.VocabularySize,
		m.DocumentsIngested,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
