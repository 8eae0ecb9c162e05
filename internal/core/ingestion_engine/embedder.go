package ingestion_engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/metrics"
	"github.com/markdave123-py/docindex/internal/models"
)

const maxBackoff = 60 * time.Second

// EmbedOptions tunes the embedding generator.
//
// BatchSize:    texts per provider request (e.g., 10).
// Concurrency:  batches in flight at once (e.g., 3).
// Delay:        pause after a successful batch while more remain (e.g., 100ms).
// RetryMax:     provider calls per batch before giving up.
type EmbedOptions struct {
	Model       string
	Dimensions  int
	BatchSize   int
	Concurrency int
	Delay       time.Duration
	RetryMax    int
}

func EmbedOptionsFromConfig(cfg config.IngestConfig) EmbedOptions {
	return EmbedOptions{
		Model:       cfg.EmbeddingModel,
		Dimensions:  cfg.EmbeddingDimensions,
		BatchSize:   cfg.BatchSize,
		Concurrency: cfg.Concurrency,
		Delay:       cfg.Delay,
		RetryMax:    cfg.RetryMax,
	}
}

// EmbeddingGenerator turns chunks into embedded chunks, batching and pacing
// provider calls and retrying transient failures with exponential backoff.
type EmbeddingGenerator struct {
	provider core.EmbeddingProvider
	opts     EmbedOptions
	log      zerolog.Logger
	metrics  *metrics.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewEmbeddingGenerator(provider core.EmbeddingProvider, opts EmbedOptions, log zerolog.Logger, m *metrics.Metrics) *EmbeddingGenerator {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.RetryMax < 1 {
		opts.RetryMax = 1
	}
	return &EmbeddingGenerator{
		provider: provider,
		opts:     opts,
		log:      logger.Component(log, "embedder"),
		metrics:  m,
		sleep:    sleepCtx,
	}
}

// Embed returns copies of chunks with Embedding set, in input order.
// Any batch failure aborts the whole call.
func (g *EmbeddingGenerator) Embed(ctx context.Context, chunks []models.DocumentChunk) ([]models.DocumentChunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	batches := partition(chunks, g.opts.BatchSize)
	results := make([][]models.DocumentChunk, len(batches))

	err := runPool(ctx, len(batches), g.opts.Concurrency, func(ctx context.Context, i int) error {
		out, err := g.embedBatch(ctx, batches[i])
		if err != nil {
			return fmt.Errorf("embedding batch %d/%d: %w", i+1, len(batches), err)
		}
		results[i] = out

		if g.opts.Delay > 0 && i < len(batches)-1 {
			return g.sleep(ctx, g.opts.Delay)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	embedded := make([]models.DocumentChunk, 0, len(chunks))
	for _, r := range results {
		embedded = append(embedded, r...)
	}
	return embedded, nil
}

func (g *EmbeddingGenerator) embedBatch(ctx context.Context, batch []models.DocumentChunk) ([]models.DocumentChunk, error) {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Content
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		vecs, err := g.provider.EmbedTexts(ctx, g.opts.Model, texts)
		if err == nil {
			if err := g.validate(batch, vecs); err != nil {
				g.metrics.RecordEmbeddingBatch("invalid", time.Since(start))
				return nil, err
			}
			out := make([]models.DocumentChunk, len(batch))
			copy(out, batch)
			for i := range out {
				out[i].Embedding = vecs[i]
			}
			g.metrics.RecordEmbeddingBatch("ok", time.Since(start))
			return out, nil
		}

		if !core.IsRetryable(err) || ctx.Err() != nil {
			g.metrics.RecordEmbeddingBatch("error", time.Since(start))
			return nil, err
		}
		if attempt >= g.opts.RetryMax {
			g.metrics.RecordEmbeddingBatch("exhausted", time.Since(start))
			return nil, core.RetryableError(core.CodeRetryExhausted, fmt.Sprintf("%d attempts", attempt), err)
		}

		wait := backoff(attempt - 1)
		g.metrics.RecordEmbeddingRetry()
		g.log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("embedding request failed; retrying")
		if err := g.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (g *EmbeddingGenerator) validate(batch []models.DocumentChunk, vecs [][]float32) error {
	if len(vecs) != len(batch) {
		return fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbeddingCountMismatch, len(vecs), len(batch))
	}
	for i, v := range vecs {
		ch := batch[i]
		if len(v) == 0 {
			return fmt.Errorf("%w: doc %s chunk %d", core.ErrEmbeddingMissing, ch.DocumentID, ch.ChunkIndex)
		}
		if g.opts.Dimensions > 0 && len(v) != g.opts.Dimensions {
			return fmt.Errorf("%w: doc %s chunk %d has %d, want %d",
				core.ErrEmbeddingDimension, ch.DocumentID, ch.ChunkIndex, len(v), g.opts.Dimensions)
		}
	}
	return nil
}

func partition(chunks []models.DocumentChunk, size int) [][]models.DocumentChunk {
	var out [][]models.DocumentChunk
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		out = append(out, chunks[start:end])
	}
	return out
}

// backoff returns min(60s, 2^retry seconds).
func backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > 6 {
		return maxBackoff
	}
	return min(maxBackoff, time.Second<<retry)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
