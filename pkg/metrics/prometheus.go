package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds all Prometheus metrics
type PrometheusMetrics struct {
	// Embedding request metrics
	RequestsTotal    *prometheus.CounterVec
	LatencyHistogram *prometheus.HistogramVec
	ItemsTotal       *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Collection lifecycle metrics
	CollectionOpsTotal *prometheus.CounterVec

	// Registry metrics
	RegisteredProviders prometheus.Gauge
}

// NewPrometheusMetrics registers the metrics with reg. A nil reg selects the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_requests_total",
				Help: "Total number of embedding requests",
			},
			[]string{"provider", "model", "status"},
		),

		LatencyHistogram: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "embedding_latency_seconds",
				Help:    "Embedding request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model"},
		),

		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_items_total",
				Help: "Total number of documents or images embedded",
			},
			[]string{"provider", "model"},
		),

		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_cache_hits_total",
				Help: "Total number of vectors served from cache",
			},
			[]string{"provider"},
		),

		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_cache_misses_total",
				Help: "Total number of vectors computed after a cache miss",
			},
			[]string{"provider"},
		),

		CollectionOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collection_operations_total",
				Help: "Total number of collection create, update and delete operations",
			},
			[]string{"backend", "operation", "status"},
		),

		RegisteredProviders: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "embedding_registered_providers",
				Help: "Number of embedding functions in the registry",
			},
		),
	}
}

// RecordRequest records the outcome of one embedding call
func (m *PrometheusMetrics) RecordRequest(provider, model string, items int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(provider, model, status).Inc()
	m.LatencyHistogram.WithLabelValues(provider, model).Observe(duration.Seconds())
	if err == nil && items > 0 {
		m.ItemsTotal.WithLabelValues(provider, model).Add(float64(items))
	}
}

// RecordCache records hits and misses of one batch lookup
func (m *PrometheusMetrics) RecordCache(provider string, hits, misses int) {
	if hits > 0 {
		m.CacheHitsTotal.WithLabelValues(provider).Add(float64(hits))
	}
	if misses > 0 {
		m.CacheMissesTotal.WithLabelValues(provider).Add(float64(misses))
	}
}

// RecordCollectionOp records a collection lifecycle operation
func (m *PrometheusMetrics) RecordCollectionOp(backend, operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.CollectionOpsTotal.WithLabelValues(backend, operation, status).Inc()
}

// SetRegisteredProviders reports the registry size
func (m *PrometheusMetrics) SetRegisteredProviders(n int) {
	m.RegisteredProviders.Set(float64(n))
}
