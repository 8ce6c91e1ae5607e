// Package metrics provides Prometheus metrics export for the media pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "picsave"

// PrometheusExporter exports pipeline metrics in Prometheus format.
// All Record methods are safe to call on a nil exporter.
type PrometheusExporter struct {
	registry *prometheus.Registry

	// Embedding gateway
	embeddingRequests *prometheus.CounterVec
	embeddingLatency  *prometheus.HistogramVec
	embeddingWait     prometheus.Histogram

	// Translation
	translations       *prometheus.CounterVec
	translationLatency *prometheus.HistogramVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec

	// Media service
	ingestions    *prometheus.CounterVec
	searches      *prometheus.CounterVec
	searchLatency *prometheus.HistogramVec
	selections    *prometheus.CounterVec
	reindexed     *prometheus.CounterVec
}

// Config configures the Prometheus exporter.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default Prometheus configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter.
func NewPrometheusExporter(cfg Config) *PrometheusExporter {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	e := &PrometheusExporter{registry: registry}

	e.embeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "requests_total",
			Help:      "Embedding provider requests by input kind and status",
		},
		[]string{"kind", "status"},
	)
	e.embeddingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "latency_seconds",
			Help:      "Embedding request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"kind"},
	)
	e.embeddingWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "queue_wait_seconds",
			Help:      "Time spent waiting for a submission slot",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	e.translations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "translation",
			Name:      "requests_total",
			Help:      "Translation provider requests by provider and status",
		},
		[]string{"provider", "status"},
	)
	e.translationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "translation",
			Name:      "latency_seconds",
			Help:      "Translation request latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"provider"},
	)
	e.cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)
	e.cacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	e.ingestions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "ingestions_total",
			Help:      "Ingestion events by kind and outcome (saved, removed, error)",
		},
		[]string{"kind", "outcome"},
	)
	e.searches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "searches_total",
			Help:      "Searches by ranking mode and status",
		},
		[]string{"mode", "status"},
	)
	e.searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "search_latency_seconds",
			Help:      "End to end search latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
		[]string{"mode"},
	)
	e.selections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "selections_total",
			Help:      "Selection events by whether they matched an owned record",
		},
		[]string{"matched"},
	)
	e.reindexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "media",
			Name:      "reindexed_total",
			Help:      "Records processed by re-index sweeps",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		e.embeddingRequests,
		e.embeddingLatency,
		e.embeddingWait,
		e.translations,
		e.translationLatency,
		e.cacheHits,
		e.cacheMisses,
		e.ingestions,
		e.searches,
		e.searchLatency,
		e.selections,
		e.reindexed,
	)

	return e
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordEmbeddingRequest records one provider round trip.
func (e *PrometheusExporter) RecordEmbeddingRequest(kind string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.embeddingRequests.WithLabelValues(kind, status(success)).Inc()
	e.embeddingLatency.WithLabelValues(kind).Observe(latency.Seconds())
}

// RecordEmbeddingWait records how long a caller queued for a submission slot.
func (e *PrometheusExporter) RecordEmbeddingWait(wait time.Duration) {
	if e == nil {
		return
	}
	e.embeddingWait.Observe(wait.Seconds())
}

// RecordTranslation records one translation provider call.
func (e *PrometheusExporter) RecordTranslation(provider string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.translations.WithLabelValues(provider, status(success)).Inc()
	e.translationLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordCacheHit records a cache hit.
func (e *PrometheusExporter) RecordCacheHit(cacheType string) {
	if e == nil {
		return
	}
	e.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (e *PrometheusExporter) RecordCacheMiss(cacheType string) {
	if e == nil {
		return
	}
	e.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordIngestion records the outcome of one save/remove toggle.
func (e *PrometheusExporter) RecordIngestion(kind, outcome string) {
	if e == nil {
		return
	}
	e.ingestions.WithLabelValues(kind, outcome).Inc()
}

// RecordSearch records a search in the given ranking mode.
func (e *PrometheusExporter) RecordSearch(mode string, latency time.Duration, success bool) {
	if e == nil {
		return
	}
	e.searches.WithLabelValues(mode, status(success)).Inc()
	e.searchLatency.WithLabelValues(mode).Observe(latency.Seconds())
}

// RecordSelection records a selection event.
func (e *PrometheusExporter) RecordSelection(matched bool) {
	if e == nil {
		return
	}
	label := "false"
	if matched {
		label = "true"
	}
	e.selections.WithLabelValues(label).Inc()
}

// RecordReindex records one record processed by a re-index sweep.
func (e *PrometheusExporter) RecordReindex(success bool) {
	if e == nil {
		return
	}
	e.reindexed.WithLabelValues(status(success)).Inc()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ServeHTTP implements http.Handler for the metrics endpoint.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.Handler().ServeHTTP(w, r)
}

// GetRegistry returns the Prometheus registry.
func (e *PrometheusExporter) GetRegistry() *prometheus.Registry {
	return e.registry
}
