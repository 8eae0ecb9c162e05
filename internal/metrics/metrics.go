// Package metrics provides Prometheus metrics for the ingestion pipeline
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline. A nil *Metrics is valid
// and records nothing, so components can run without a registry in tests.
type Metrics struct {
	DocumentsTotal *prometheus.CounterVec
	PhaseDuration  *prometheus.HistogramVec

	EmbeddingBatchesTotal  *prometheus.CounterVec
	EmbeddingRetriesTotal  prometheus.Counter
	EmbeddingBatchDuration prometheus.Histogram

	ChunkRowsTotal *prometheus.CounterVec

	SearchRequestsTotal *prometheus.CounterVec

	BatchRunsTotal *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_documents_total",
				Help: "Documents handled by the orchestrator, by outcome",
			},
			[]string{"outcome"},
		),
		PhaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docindex_phase_duration_seconds",
				Help:    "Duration of orchestrator phases in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),
		EmbeddingBatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_embedding_batches_total",
				Help: "Embedding batches by final status",
			},
			[]string{"status"},
		),
		EmbeddingRetriesTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "docindex_embedding_retries_total",
				Help: "Embedding requests retried after a transient failure",
			},
		),
		EmbeddingBatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docindex_embedding_batch_duration_seconds",
				Help:    "Duration of a single embeddings request in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		ChunkRowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_chunk_rows_total",
				Help: "Chunk rows written or pruned",
			},
			[]string{"op"},
		),
		SearchRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_search_requests_total",
				Help: "Search requests by the mode that served them",
			},
			[]string{"mode"},
		),
		BatchRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docindex_batch_runs_total",
				Help: "Batch runs by result",
			},
			[]string{"ok"},
		),
	}
}

// RecordDocument counts one orchestrator outcome.
func (m *Metrics) RecordDocument(outcome string) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(outcome).Inc()
}

// ObservePhase records how long a phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordEmbeddingBatch records a finished batch ("ok" or "error").
func (m *Metrics) RecordEmbeddingBatch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.EmbeddingBatchesTotal.WithLabelValues(status).Inc()
	m.EmbeddingBatchDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordEmbeddingRetry() {
	if m == nil {
		return
	}
	m.EmbeddingRetriesTotal.Inc()
}

// RecordChunkRows adds n to the "upserted" or "pruned" counter.
func (m *Metrics) RecordChunkRows(op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ChunkRowsTotal.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) RecordSearch(mode string) {
	if m == nil {
		return
	}
	m.SearchRequestsTotal.WithLabelValues(mode).Inc()
}

func (m *Metrics) RecordBatchRun(ok bool) {
	if m == nil {
		return
	}
	label := "false"
	if ok {
		label = "true"
	}
	m.BatchRunsTotal.WithLabelValues(label).Inc()
}
