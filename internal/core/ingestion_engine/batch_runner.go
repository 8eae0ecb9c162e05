package ingestion_engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/metrics"
	"github.com/markdave123-py/docindex/internal/models"
)

// RunOptions selects and tunes one batch run.
//
// Force:       include documents that are already processed.
// Limit:       cap on documents selected, <= 0 for no cap.
// Concurrency: documents in flight; <= 0 means the configured DocumentConcurrency.
type RunOptions struct {
	Force        bool
	Limit        int
	Concurrency  int
	ChunkSize    int
	ChunkOverlap int
	DryRun       bool
}

type documentProcessor interface {
	Process(ctx context.Context, doc *models.Document, opts ProcessOptions) (*ProcessResult, error)
}

// BatchRunner processes every pending document and reports a summary.
type BatchRunner struct {
	docs        core.DocumentStore
	processor   documentProcessor
	concurrency int
	log         zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewBatchRunner(docs core.DocumentStore, ingestor *DocumentIngestor, concurrency int, log zerolog.Logger, m *metrics.Metrics) *BatchRunner {
	return &BatchRunner{
		docs:        docs,
		processor:   ingestor,
		concurrency: concurrency,
		log:         logger.Component(log, "batch"),
		metrics:     m,
		now:         time.Now,
	}
}

// Run processes the selected documents with bounded concurrency. A single
// document's failure never aborts the run. The summary is returned even when
// the run itself fails, with OK=false and Error set.
func (r *BatchRunner) Run(ctx context.Context, opts RunOptions) (summary *models.RunSummary, err error) {
	summary = &models.RunSummary{RunID: uuid.NewString(), StartedAt: r.now().UTC()}
	log := r.log.With().Str("run_id", summary.RunID).Logger()

	defer func() {
		summary.FinishedAt = r.now().UTC()
		summary.OK = err == nil
		if err != nil {
			summary.Error = err.Error()
		}
		r.metrics.RecordBatchRun(summary.OK)

		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Int("total", summary.Total).
			Int("processed_ok", summary.ProcessedOK).
			Int("needs_ocr", summary.NeedsOCR).
			Int("retried", summary.Retried).
			Int("failed", summary.Failed).
			Int("skipped", summary.Skipped).
			Int("deferred", summary.Deferred).
			Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
			Msg("batch run finished")
	}()

	docs, err := r.docs.ListPendingDocuments(ctx, core.PendingFilter{Force: opts.Force, Limit: opts.Limit})
	if err != nil {
		return summary, fmt.Errorf("list pending documents: %w", err)
	}
	summary.Total = len(docs)
	log.Info().Int("documents", len(docs)).Bool("force", opts.Force).Bool("dry_run", opts.DryRun).Msg("batch run started")

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = r.concurrency
	}
	procOpts := ProcessOptions{ChunkSize: opts.ChunkSize, ChunkOverlap: opts.ChunkOverlap, DryRun: opts.DryRun}

	var mu sync.Mutex
	err = runPool(ctx, len(docs), concurrency, func(ctx context.Context, idx int) error {
		doc := docs[idx]
		res, perr := r.processor.Process(ctx, &doc, procOpts)
		if perr != nil {
			log.Warn().Err(perr).Str("doc_id", doc.ID).Msg("document did not complete")
		}
		if res == nil {
			res = &ProcessResult{Outcome: OutcomeFailed}
		}

		mu.Lock()
		defer mu.Unlock()
		tally(summary, res)
		return nil
	})
	if err == nil {
		err = ctx.Err()
	}
	return summary, err
}

func tally(s *models.RunSummary, res *ProcessResult) {
	if res.Retries > 0 {
		s.Retried++
	}
	switch res.Outcome {
	case OutcomeProcessed:
		s.ProcessedOK++
	case OutcomeNeedsOCR:
		s.NeedsOCR++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDeferred:
		s.Deferred++
	default:
		s.Failed++
	}
}
