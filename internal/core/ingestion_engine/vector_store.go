package ingestion_engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/metrics"
	"github.com/markdave123-py/docindex/internal/models"
)

// StoreOptions controls a single Store call.
type StoreOptions struct {
	// DryRun logs what would be written without touching the database.
	DryRun bool
}

// VectorStore persists embedded chunks and serves similarity search over them.
//
// Writes are keyed on (doc_id, chunk_index): re-storing a document overwrites
// its rows in place and prunes indices past the new maximum, so a shrunken
// document leaves no stale chunks behind.
type VectorStore struct {
	db      core.ChunkStore
	dims    int
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewVectorStore(db core.ChunkStore, dims int, log zerolog.Logger, m *metrics.Metrics) *VectorStore {
	return &VectorStore{
		db:      db,
		dims:    dims,
		log:     logger.Component(log, "vector_store"),
		metrics: m,
	}
}

// Store upserts chunks grouped by document. Chunks without a document ID or
// an embedding are skipped; a vector of the wrong dimension fails the call
// before anything is written.
func (s *VectorStore) Store(ctx context.Context, chunks []models.DocumentChunk, opts StoreOptions) error {
	groups := map[string]map[int]models.DocumentChunk{}
	var order []string

	for _, ch := range chunks {
		if ch.DocumentID == "" || len(ch.Embedding) == 0 {
			s.log.Warn().Str("doc_id", ch.DocumentID).Int("chunk_index", ch.ChunkIndex).Msg("skipping chunk without document or embedding")
			continue
		}
		if s.dims > 0 && len(ch.Embedding) != s.dims {
			return fmt.Errorf("%w: doc %s chunk %d has %d, want %d",
				core.ErrEmbeddingDimension, ch.DocumentID, ch.ChunkIndex, len(ch.Embedding), s.dims)
		}
		g, ok := groups[ch.DocumentID]
		if !ok {
			g = map[int]models.DocumentChunk{}
			groups[ch.DocumentID] = g
			order = append(order, ch.DocumentID)
		}
		g[ch.ChunkIndex] = ch
	}

	for _, docID := range order {
		rows := make([]models.DocumentChunk, 0, len(groups[docID]))
		for _, ch := range groups[docID] {
			if ch.ID == "" {
				ch.ID = ChunkID(docID, ch.ChunkIndex)
			}
			rows = append(rows, ch)
		}
		sort.Slice(rows, func(a, b int) bool { return rows[a].ChunkIndex < rows[b].ChunkIndex })
		maxIndex := rows[len(rows)-1].ChunkIndex

		if opts.DryRun {
			s.log.Info().Str("doc_id", docID).Int("rows", len(rows)).Int("max_index", maxIndex).Msg("dry run: would upsert chunks")
			continue
		}

		if err := s.db.UpsertDocumentChunks(ctx, docID, rows); err != nil {
			return fmt.Errorf("upsert chunks for %s: %w", docID, err)
		}
		pruned, err := s.db.DeleteChunksAfter(ctx, docID, maxIndex)
		if err != nil {
			return fmt.Errorf("prune chunks for %s: %w", docID, err)
		}

		s.metrics.RecordChunkRows("upserted", len(rows))
		s.metrics.RecordChunkRows("pruned", int(pruned))
		s.log.Debug().Str("doc_id", docID).Int("rows", len(rows)).Int64("pruned", pruned).Msg("stored chunks")
	}
	return nil
}

// Search ranks chunks by cosine similarity to queryVec. When queryVec is
// empty or the similarity query fails, it falls back to a keyword match on
// queryText and marks the results accordingly.
func (s *VectorStore) Search(ctx context.Context, queryVec []float32, queryText string, threshold float64, limit int) ([]models.SearchResult, error) {
	if len(queryVec) > 0 {
		res, err := s.db.MatchDocumentChunks(ctx, queryVec, threshold, limit)
		if err == nil {
			s.metrics.RecordSearch(string(models.SearchModeVector))
			for i := range res {
				res[i].Mode = models.SearchModeVector
			}
			return res, nil
		}
		s.log.Warn().Err(err).Msg("similarity search failed; falling back to keyword search")
	}

	res, err := s.db.KeywordSearchChunks(ctx, queryText, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	for i := range res {
		res[i].Mode = models.SearchModeKeyword
		res[i].Similarity = nil
	}
	s.metrics.RecordSearch(string(models.SearchModeKeyword))
	return res, nil
}

// DeleteByDocument removes every chunk of docID.
func (s *VectorStore) DeleteByDocument(ctx context.Context, docID string) error {
	n, err := s.db.DeleteDocumentChunks(ctx, docID)
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", docID, err)
	}
	s.metrics.RecordChunkRows("pruned", int(n))
	s.log.Info().Str("doc_id", docID).Int64("rows", n).Msg("deleted document chunks")
	return nil
}
