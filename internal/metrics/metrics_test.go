package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveQuery(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveQuery("sqlite", "ok", 10*time.Millisecond, 10)
	m.ObserveQuery("sqlite", "ok", 5*time.Millisecond, 3)
	m.ObserveQuery("sqlite", "error", time.Millisecond, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("sqlite", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("sqlite", "error")))
}

func TestCacheAndMappingCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.AddMappingEntries("location", "mapped", 4)
	m.AddMappingEntries("location", "new", 0)
	m.TokensSwept(3)
	m.ObserveStage("mapping", "ok", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MetaCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MetaCacheMisses))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MappingEntries.WithLabelValues("location", "mapped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PreviewTokensSwept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StagesTotal.WithLabelValues("mapping", "ok")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("memory", "ok", time.Millisecond, 1)
		m.CacheHit()
		m.CacheMiss()
		m.AddMappingEntries("filter", "new", 1)
		m.ObserveStage("publish", "ok", time.Millisecond)
		m.TokensSwept(1)
	})
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
