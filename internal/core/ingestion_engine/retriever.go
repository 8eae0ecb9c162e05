package ingestion_engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/models"
)

// Retriever answers free-text queries against the stored chunks.
type Retriever struct {
	provider  core.EmbeddingProvider
	store     *VectorStore
	model     string
	threshold float64
	limit     int
	log       zerolog.Logger
}

func NewRetriever(provider core.EmbeddingProvider, store *VectorStore, cfg config.IngestConfig, log zerolog.Logger) *Retriever {
	return &Retriever{
		provider:  provider,
		store:     store,
		model:     cfg.EmbeddingModel,
		threshold: cfg.SimilarityThreshold,
		limit:     cfg.MaxResults,
		log:       logger.Component(log, "retriever"),
	}
}

// SearchSimilarDocuments returns up to the configured number of results.
func (r *Retriever) SearchSimilarDocuments(ctx context.Context, queryText string) []models.SearchResult {
	return r.Search(ctx, queryText, r.limit)
}

// Search embeds queryText and ranks chunks by similarity, degrading to a
// keyword match when embedding or the vector query fails. It never returns
// an error; a total failure yields an empty slice.
func (r *Retriever) Search(ctx context.Context, queryText string, limit int) []models.SearchResult {
	query := strings.TrimSpace(queryText)
	if query == "" {
		return []models.SearchResult{}
	}
	if limit <= 0 {
		limit = r.limit
	}

	var vec []float32
	vecs, err := r.provider.EmbedTexts(ctx, r.model, []string{query})
	switch {
	case err != nil:
		r.log.Warn().Err(err).Msg("embedding query failed; using keyword search")
	case len(vecs) != 1 || len(vecs[0]) == 0:
		r.log.Warn().Int("vectors", len(vecs)).Msg("embedding query returned no vector; using keyword search")
	default:
		vec = vecs[0]
	}

	res, err := r.store.Search(ctx, vec, query, r.threshold, limit)
	if err != nil {
		r.log.Error().Err(err).Str("query", query).Msg("search failed")
		return []models.SearchResult{}
	}
	if res == nil {
		return []models.SearchResult{}
	}
	return res
}
