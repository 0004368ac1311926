// Package metrics provides Prometheus collectors for the versioning
// pipeline, the mapping engine and query execution.
//
// All methods are safe on a nil *Metrics, so components can be built
// without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors.
type Metrics struct {
	// Query execution
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryRows     prometheus.Histogram

	// Version meta cache
	MetaCacheHits   prometheus.Counter
	MetaCacheMisses prometheus.Counter

	// Mapping and pipeline
	MappingEntries *prometheus.CounterVec
	StagesTotal    *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec

	// Preview tokens
	PreviewTokensSwept prometheus.Counter
}

// New creates all collectors and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry().
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataver_queries_total",
				Help: "Total number of observation queries by outcome",
			},
			[]string{"backend", "outcome"},
		),
		QueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataver_query_duration_seconds",
				Help:    "Duration of observation queries in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"backend"},
		),
		QueryRows: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dataver_query_rows",
				Help:    "Rows returned per query page",
				Buckets: []float64{0, 1, 5, 10, 20, 40},
			},
		),
		MetaCacheHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dataver_meta_cache_hits_total",
				Help: "Version meta cache hits",
			},
		),
		MetaCacheMisses: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dataver_meta_cache_misses_total",
				Help: "Version meta cache misses",
			},
		),
		MappingEntries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataver_mapping_entries_total",
				Help: "Mapping entries produced by kind and type",
			},
			[]string{"kind", "type"},
		),
		StagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dataver_pipeline_stages_total",
				Help: "Pipeline stage runs by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dataver_pipeline_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		PreviewTokensSwept: f.NewCounter(
			prometheus.CounterOpts{
				Name: "dataver_preview_tokens_swept_total",
				Help: "Expired preview tokens deleted by the sweeper",
			},
		),
	}
}

// ObserveQuery records one query execution.
func (m *Metrics) ObserveQuery(backend, outcome string, d time.Duration, rows int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(backend, outcome).Inc()
	m.QueryDuration.WithLabelValues(backend).Observe(d.Seconds())
	if outcome == "ok" {
		m.QueryRows.Observe(float64(rows))
	}
}

// CacheHit records a meta cache hit.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.MetaCacheHits.Inc()
	}
}

// CacheMiss records a meta cache miss.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.MetaCacheMisses.Inc()
	}
}

// AddMappingEntries records n mapping entries of a kind and type.
func (m *Metrics) AddMappingEntries(kind, typ string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.MappingEntries.WithLabelValues(kind, typ).Add(float64(n))
}

// ObserveStage records one pipeline stage run.
func (m *Metrics) ObserveStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StagesTotal.WithLabelValues(stage, outcome).Inc()
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// TokensSwept records deleted preview tokens.
func (m *Metrics) TokensSwept(n int) {
	if m != nil && n > 0 {
		m.PreviewTokensSwept.Add(float64(n))
	}
}
