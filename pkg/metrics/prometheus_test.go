package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordRequest(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordRequest("openai", "text-embedding-3-small", 4, 20*time.Millisecond, nil)
	m.RecordRequest("openai", "text-embedding-3-small", 2, 5*time.Millisecond, errors.New("HTTP 500"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("openai", "text-embedding-3-small", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("openai", "text-embedding-3-small", "error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ItemsTotal.WithLabelValues("openai", "text-embedding-3-small")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LatencyHistogram))
}

func TestRecordCache(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordCache("cohere", 3, 1)
	m.RecordCache("cohere", 0, 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("cohere")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("cohere")))
}

func TestRecordCollectionOpAndRegistry(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())

	m.RecordCollectionOp("chroma", "create", nil)
	m.RecordCollectionOp("redis", "create", errors.New("exists"))
	m.SetRegisteredProviders(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionOpsTotal.WithLabelValues("chroma", "create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CollectionOpsTotal.WithLabelValues("redis", "create", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RegisteredProviders))
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic
	assert.NotPanics(t, func() {
		NewPrometheusMetrics(prometheus.NewRegistry())
		NewPrometheusMetrics(prometheus.NewRegistry())
	})
}
