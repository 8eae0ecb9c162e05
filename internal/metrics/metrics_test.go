package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordDocument("processed")
	m.RecordDocument("processed")
	m.RecordDocument("needs_ocr")
	m.RecordEmbeddingBatch("ok", 10*time.Millisecond)
	m.RecordEmbeddingRetry()
	m.RecordChunkRows("upserted", 4)
	m.RecordChunkRows("pruned", 0)
	m.RecordSearch("keyword")
	m.RecordBatchRun(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocumentsTotal.WithLabelValues("needs_ocr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingBatchesTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmbeddingRetriesTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ChunkRowsTotal.WithLabelValues("upserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchRequestsTotal.WithLabelValues("keyword")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchRunsTotal.WithLabelValues("false")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDocument("failed")
		m.ObservePhase("embedding", time.Second)
		m.RecordEmbeddingBatch("error", time.Second)
		m.RecordEmbeddingRetry()
		m.RecordChunkRows("upserted", 3)
		m.RecordSearch("vector")
		m.RecordBatchRun(true)
	})
}
