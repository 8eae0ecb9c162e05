package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/metrics"
	"github.com/markdave123-py/docindex/internal/models"
)

const (
	lastErrorNeedsOCR = "needs-ocr"
	lastErrorOCRFail  = "ocr-failed"
	lastErrorInFlight = "already-processing"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(
	docs core.DocumentStore,
	obj core.ObjectClient,
	extractor core.DocumentExtractor,
	embedder *EmbeddingGenerator,
	store *VectorStore,
	cfg config.IngestConfig,
	log zerolog.Logger,
	m *metrics.Metrics,
) *DocumentIngestor {
	return &DocumentIngestor{
		docs:      docs,
		obj:       obj,
		extractor: extractor,
		embedder:  embedder,
		store:     store,
		cfg:       cfg,
		log:       logger.Component(log, "ingestor"),
		metrics:   m,
		now:       time.Now,
		sleep:     sleepCtx,
		jobs:      make(chan string, 64),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx is done.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					i.log.Debug().Int("worker", w).Msg("worker shutting down")
					return
				case docID := <-i.jobs:
					if _, err := i.ProcessOne(ctx, docID); err != nil {
						i.log.Error().Err(err).Str("doc_id", docID).Int("worker", w).Msg("processing document")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for the background workers.
// It blocks while the queue is full.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProcessOne loads docID and runs it through the pipeline with the configured settings.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) (*ProcessResult, error) {
	doc, err := i.docs.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", docID, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("document %s not found", docID)
	}
	return i.Process(ctx, doc, ProcessOptions{})
}

// ProcessDocument runs doc through the pipeline and returns the number of
// chunks stored. Skipped and needs-OCR documents return 0 without error.
func (i *DocumentIngestor) ProcessDocument(ctx context.Context, doc *models.Document, opts ProcessOptions) (int, error) {
	res, err := i.Process(ctx, doc, opts)
	if err != nil {
		return 0, err
	}
	return res.ChunkCount, nil
}

// docRun carries the per-document state through the phases.
type docRun struct {
	doc     *models.Document
	opts    ProcessOptions
	log     zerolog.Logger
	state   models.ProcessingState
	retries int
}

// Process drives doc through download, extraction, chunking, embedding and
// storage, persisting each phase and exactly one terminal state. It always
// returns a result; the error is non-nil for failed and deferred outcomes.
//
// A document already in flight in this process is skipped without touching
// its state.
func (i *DocumentIngestor) Process(ctx context.Context, doc *models.Document, opts ProcessOptions) (*ProcessResult, error) {
	if _, busy := i.active.LoadOrStore(doc.ID, struct{}{}); busy {
		i.log.Info().Str("doc_id", doc.ID).Msg("document already in flight; skipping")
		return &ProcessResult{Outcome: OutcomeSkipped, LastError: lastErrorInFlight}, nil
	}
	defer i.active.Delete(doc.ID)

	run := &docRun{
		doc:   doc,
		opts:  opts,
		log:   logger.Document(i.log, doc.ID, doc.FileName),
		state: stateOf(doc),
	}

	start := i.now()
	res, err := i.process(ctx, run)
	i.metrics.RecordDocument(string(res.Outcome))
	i.metrics.ObservePhase("document", i.now().Sub(start))
	return res, err
}

func (i *DocumentIngestor) process(ctx context.Context, run *docRun) (*ProcessResult, error) {
	doc := run.doc

	if code := skipReason(doc.FileName); code != "" {
		run.log.Info().Str("reason", code).Msg("skipping document")
		st := run.state
		st.Status = models.StatusSkipped
		st.Processed = false
		st.LastError = &code
		return i.finish(ctx, run, OutcomeSkipped, st, nil)
	}

	i.setStatus(ctx, run, models.StatusDownloading)
	phase := i.now()
	data, err := i.obj.GetFile(ctx, ObjectKey(doc.StoragePath))
	i.metrics.ObservePhase("download", i.now().Sub(phase))
	if err != nil {
		if ctx.Err() != nil {
			return i.interrupted(ctx, run)
		}
		msg := downloadFailure(err)
		st := run.state
		st.Status = models.StatusDeferred
		st.Processed = false
		st.LastError = &msg
		return i.finish(ctx, run, OutcomeDeferred, st, fmt.Errorf("download %s: %w", doc.StoragePath, err))
	}

	i.setStatus(ctx, run, models.StatusExtracting)
	phase = i.now()
	res, err := i.extractor.Extract(ctx, data, doc.FileName)
	i.metrics.ObservePhase("extract", i.now().Sub(phase))
	if err != nil {
		if ctx.Err() != nil {
			return i.interrupted(ctx, run)
		}
		switch core.KindOf(err) {
		case core.KindNeedsOCR:
			return i.needsOCR(ctx, run, lastErrorOCRFail, err)
		default:
			return i.fail(ctx, run, errorMessage(err), err)
		}
	}
	mime := res.Mime
	run.state.MimeType = &mime
	run.log.Debug().Str("kind", string(res.Kind)).Bool("used_ocr", res.UsedOCR).Int("chars", len(res.Text)).Msg("extracted text")

	if res.Text == "" {
		code := lastErrorNeedsOCR
		if res.OCRAttempted {
			code = lastErrorOCRFail
		}
		return i.needsOCR(ctx, run, code, nil)
	}

	i.setStatus(ctx, run, models.StatusChunking)
	chunks := ChunkDocument(doc, res, i.chunkConfig(run.opts))
	if len(chunks) == 0 {
		return i.needsOCR(ctx, run, lastErrorNeedsOCR, nil)
	}

	phase = i.now()
	stored, err := i.embedAndStore(ctx, run, chunks)
	i.metrics.ObservePhase("embed_store", i.now().Sub(phase))
	if err != nil {
		if ctx.Err() != nil {
			return i.interrupted(ctx, run)
		}
		return i.fail(ctx, run, errorMessage(err), err)
	}

	now := i.now().UTC()
	st := models.ProcessingState{
		Status:      models.StatusProcessed,
		Processed:   true,
		NeedsOCR:    false,
		ChunkCount:  stored,
		RetryCount:  0,
		LastError:   nil,
		ProcessedAt: &now,
		MimeType:    &mime,
	}
	return i.finish(ctx, run, OutcomeProcessed, st, nil)
}

// embedAndStore retries retryable failures up to RetryMax attempts. An
// exhausted budget inside the embedding generator is terminal here.
func (i *DocumentIngestor) embedAndStore(ctx context.Context, run *docRun, chunks []models.DocumentChunk) (int, error) {
	for attempt := 1; ; attempt++ {
		n, err := i.embedAndStoreOnce(ctx, run, chunks)
		if err == nil {
			return n, nil
		}
		if !core.IsRetryable(err) || ctx.Err() != nil {
			return 0, err
		}

		run.retries++
		if core.CodeOf(err) == core.CodeRetryExhausted {
			return 0, err
		}
		if attempt >= i.cfg.RetryMax {
			return 0, core.RetryableError(core.CodeRetryExhausted, fmt.Sprintf("%d attempts", attempt), err)
		}

		msg := errorMessage(err)
		st := run.state
		st.Status = models.StatusRetrying
		st.RetryCount = run.doc.RetryCount + run.retries
		st.LastError = &msg
		i.persist(ctx, run, st)

		wait := backoff(attempt - 1)
		run.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("embed+store failed; retrying")
		if err := i.sleep(ctx, wait); err != nil {
			return 0, err
		}
	}
}

func (i *DocumentIngestor) embedAndStoreOnce(ctx context.Context, run *docRun, chunks []models.DocumentChunk) (int, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if i.cfg.EmbedTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, i.cfg.EmbedTimeout)
	}
	defer cancel()

	i.setStatus(ctx, run, models.StatusEmbedding)
	embedded, err := i.embedder.Embed(attemptCtx, chunks)
	if err != nil {
		return 0, i.asTimeout(ctx, attemptCtx, err)
	}

	i.setStatus(ctx, run, models.StatusStoring)
	if err := i.store.Store(attemptCtx, embedded, StoreOptions{DryRun: run.opts.DryRun}); err != nil {
		return 0, i.asTimeout(ctx, attemptCtx, err)
	}
	return len(embedded), nil
}

// asTimeout reclassifies an error caused by the per-attempt deadline, as
// opposed to cancellation of the caller's context.
func (i *DocumentIngestor) asTimeout(parent, attempt context.Context, err error) error {
	if parent.Err() == nil && errors.Is(attempt.Err(), context.DeadlineExceeded) {
		return core.RetryableError(core.CodeTimeout, "embed+store exceeded "+i.cfg.EmbedTimeout.String(), err)
	}
	return err
}

func (i *DocumentIngestor) needsOCR(ctx context.Context, run *docRun, code string, cause error) (*ProcessResult, error) {
	run.log.Info().Err(cause).Str("reason", code).Msg("document needs ocr")
	st := run.state
	st.Status = models.StatusNeedsOCR
	st.Processed = false
	st.NeedsOCR = true
	st.ChunkCount = 0
	st.LastError = &code
	i.dropChunks(ctx, run)
	return i.finish(ctx, run, OutcomeNeedsOCR, st, nil)
}

func (i *DocumentIngestor) fail(ctx context.Context, run *docRun, msg string, cause error) (*ProcessResult, error) {
	i.dropChunks(ctx, run)
	st := run.state
	st.Status = models.StatusFailed
	st.Processed = false
	st.ChunkCount = 0
	st.LastError = &msg
	return i.finish(ctx, run, OutcomeFailed, st, cause)
}

// dropChunks removes rows left by an earlier successful run.
func (i *DocumentIngestor) dropChunks(ctx context.Context, run *docRun) {
	if run.opts.DryRun {
		return
	}
	if err := i.store.DeleteByDocument(ctx, run.doc.ID); err != nil {
		run.log.Warn().Err(err).Msg("removing stale chunks")
	}
}

// interrupted leaves the document in its last durably written state.
func (i *DocumentIngestor) interrupted(ctx context.Context, run *docRun) (*ProcessResult, error) {
	run.log.Warn().Err(ctx.Err()).Str("status", string(run.state.Status)).Msg("processing interrupted")
	return &ProcessResult{Outcome: OutcomeFailed, Retries: run.retries}, ctx.Err()
}

// finish writes the terminal state and builds the result.
func (i *DocumentIngestor) finish(ctx context.Context, run *docRun, outcome Outcome, st models.ProcessingState, cause error) (*ProcessResult, error) {
	if outcome != OutcomeProcessed {
		st.RetryCount = run.doc.RetryCount + run.retries
	}

	res := &ProcessResult{Outcome: outcome, Retries: run.retries}
	if outcome == OutcomeProcessed {
		res.ChunkCount = st.ChunkCount
	}
	if st.LastError != nil {
		res.LastError = *st.LastError
	}

	if !run.opts.DryRun {
		if err := i.docs.UpdateDocumentState(ctx, run.doc.ID, st); err != nil {
			res.Outcome = OutcomeFailed
			res.ChunkCount = 0
			cause = errors.Join(cause, fmt.Errorf("persist %s state: %w", outcome, err))
		}
	}

	ev := run.log.Info()
	if cause != nil {
		ev = run.log.Error().Err(cause)
	}
	ev.Str("outcome", string(res.Outcome)).Int("chunks", res.ChunkCount).Int("retries", res.Retries).Msg("document finished")
	return res, cause
}

func (i *DocumentIngestor) setStatus(ctx context.Context, run *docRun, status models.Status) {
	run.state.Status = status
	if run.opts.DryRun {
		return
	}
	if err := i.docs.UpdateDocumentStatus(ctx, run.doc.ID, status); err != nil {
		run.log.Warn().Err(err).Str("status", string(status)).Msg("updating document status")
	}
}

// persist writes an intermediate state; failures are logged, not returned.
func (i *DocumentIngestor) persist(ctx context.Context, run *docRun, st models.ProcessingState) {
	run.state = st
	if run.opts.DryRun {
		return
	}
	if err := i.docs.UpdateDocumentState(ctx, run.doc.ID, st); err != nil {
		run.log.Warn().Err(err).Str("status", string(st.Status)).Msg("updating document state")
	}
}

func (i *DocumentIngestor) chunkConfig(opts ProcessOptions) config.IngestConfig {
	cfg := i.cfg
	if opts.ChunkSize > 0 {
		cfg.ChunkSize = opts.ChunkSize
	}
	if opts.ChunkOverlap > 0 {
		cfg.ChunkOverlap = opts.ChunkOverlap
	}
	return cfg
}

func stateOf(doc *models.Document) models.ProcessingState {
	return models.ProcessingState{
		Status:      doc.Status,
		Processed:   doc.Processed,
		NeedsOCR:    doc.NeedsOCR,
		ChunkCount:  doc.ChunkCount,
		RetryCount:  doc.RetryCount,
		LastError:   doc.LastError,
		ProcessedAt: doc.ProcessedAt,
		MimeType:    doc.MimeType,
	}
}

// errorMessage prefers the typed error's code-first message.
func errorMessage(err error) string {
	var e *core.Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

// downloadFailure formats last_error as download-failed:<status>:<message>.
func downloadFailure(err error) string {
	status, msg := 0, err.Error()
	var de *core.DownloadError
	if errors.As(err, &de) {
		status = de.Status
		if de.Err != nil {
			msg = de.Err.Error()
		}
	}
	return fmt.Sprintf("download-failed:%d:%s", status, msg)
}

// ObjectKey accepts a bucket-relative key or a legacy URL, either
// virtual-hosted (https://bucket.s3.region.amazonaws.com/key),
// path-style (https://s3.region.amazonaws.com/bucket/key) or s3://bucket/key.
func ObjectKey(storagePath string) string {
	switch {
	case strings.HasPrefix(storagePath, "s3://"):
		_, key, _ := strings.Cut(strings.TrimPrefix(storagePath, "s3://"), "/")
		return key
	case strings.HasPrefix(storagePath, "https://"), strings.HasPrefix(storagePath, "http://"):
		u, err := url.Parse(storagePath)
		if err != nil {
			return storagePath
		}
		key := strings.TrimPrefix(u.Path, "/")
		if strings.HasPrefix(u.Host, "s3.") || strings.HasPrefix(u.Host, "s3-") {
			_, key, _ = strings.Cut(key, "/")
		}
		return key
	}
	return strings.TrimPrefix(storagePath, "/")
}
