package ingestion_engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/metrics"
)

// ProcessOptions overrides pipeline settings for one document.
//
// ChunkSize/ChunkOverlap: zero means the configured value.
// DryRun:                 run every phase but write neither document state nor chunks.
type ProcessOptions struct {
	ChunkSize    int
	ChunkOverlap int
	DryRun       bool
}

// Outcome is the terminal result of processing one document.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeNeedsOCR  Outcome = "needs_ocr"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFailed    Outcome = "failed"
)

// ProcessResult describes what happened to one document.
//
// ChunkCount: rows stored, zero unless Outcome is processed.
// Retries:    retryable embed+store failures absorbed during this run.
type ProcessResult struct {
	Outcome    Outcome `json:"outcome"`
	ChunkCount int     `json:"chunk_count"`
	Retries    int     `json:"retries"`
	LastError  string  `json:"last_error,omitempty"`
}

// DocumentIngestor orchestrates the per-document pipeline:
//
// docs:      document metadata and processing state.
// obj:       object storage holding the uploaded bytes.
// extractor: bytes -> text, including the OCR fallback.
// embedder:  chunks -> embedded chunks.
// store:     embedded chunks -> chunk rows.
// cfg:       runtime tuning knobs for the pipeline.
// jobs:      in-memory queue of document IDs for the background workers.
// active:    IDs of documents currently in flight.
type DocumentIngestor struct {
	docs      core.DocumentStore
	obj       core.ObjectClient
	extractor core.DocumentExtractor
	embedder  *EmbeddingGenerator
	store     *VectorStore
	cfg       config.IngestConfig
	log       zerolog.Logger
	metrics   *metrics.Metrics

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jobs   chan string
	active sync.Map
}
