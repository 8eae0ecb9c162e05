package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/docindex/internal/models"
)

// UpsertDocumentChunks writes chunks in a single transaction, replacing rows
// that share (doc_id, chunk_index).
func (c *DatabaseClient) UpsertDocumentChunks(ctx context.Context, docID string, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return classify("begin chunk upsert", err)
	}

	const q = `
		INSERT INTO document_chunks
			(id, doc_id, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		ON CONFLICT (doc_id, chunk_index) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata,
		    updated_at = now()
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return classify("prepare chunk upsert", err)
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		meta, err := marshalMetadata(ch.Metadata)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, docID, ch.ChunkIndex, ch.Content, pgvector.NewVector(ch.Embedding), meta,
		); err != nil {
			_ = tx.Rollback()
			return classify("upsert chunk", err)
		}
	}
	return classify("commit chunk upsert", tx.Commit())
}

func (c *DatabaseClient) DeleteChunksAfter(ctx context.Context, docID string, maxIndex int) (int64, error) {
	const q = `DELETE FROM document_chunks WHERE doc_id = $1 AND chunk_index > $2`
	res, err := c.db.ExecContext(ctx, q, docID, maxIndex)
	if err != nil {
		return 0, classify("prune chunks", err)
	}
	n, err := res.RowsAffected()
	return n, classify("prune chunks", err)
}

func (c *DatabaseClient) DeleteDocumentChunks(ctx context.Context, docID string) (int64, error) {
	const q = `DELETE FROM document_chunks WHERE doc_id = $1`
	res, err := c.db.ExecContext(ctx, q, docID)
	if err != nil {
		return 0, classify("delete chunks", err)
	}
	n, err := res.RowsAffected()
	return n, classify("delete chunks", err)
}

// MatchDocumentChunks ranks chunks by cosine similarity through match_document_chunks.
func (c *DatabaseClient) MatchDocumentChunks(ctx context.Context, queryVec []float32, threshold float64, limit int) ([]models.SearchResult, error) {
	const q = `
		SELECT doc_id, chunk_index, content, metadata, similarity
		FROM match_document_chunks($1, $2, $3)
	`
	rows, err := c.db.QueryContext(ctx, q, pgvector.NewVector(queryVec), threshold, limit)
	if err != nil {
		return nil, classify("match chunks", err)
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var (
			r    models.SearchResult
			meta []byte
			sim  float64
		)
		if err := rows.Scan(&r.DocumentID, &r.ChunkIndex, &r.Content, &meta, &sim); err != nil {
			return nil, classify("scan match", err)
		}
		if r.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, err
		}
		r.Similarity = &sim
		r.Mode = models.SearchModeVector
		out = append(out, r)
	}
	return out, classify("match chunks", rows.Err())
}

// KeywordSearchChunks is the fallback used when no query embedding is available.
// Chunks are ranked by how many distinct query terms they contain.
func (c *DatabaseClient) KeywordSearchChunks(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	patterns := keywordPatterns(query)
	if len(patterns) == 0 {
		return []models.SearchResult{}, nil
	}

	const q = `
		SELECT c.doc_id, c.chunk_index, c.content, c.metadata
		FROM document_chunks c
		CROSS JOIN LATERAL (
			SELECT count(*) AS hits
			FROM unnest($1::text[]) AS p
			WHERE c.content ILIKE p
		) m
		WHERE m.hits > 0
		ORDER BY m.hits DESC, c.updated_at DESC, c.chunk_index ASC
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, q, patterns, limit)
	if err != nil {
		return nil, classify("keyword search", err)
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var (
			r    models.SearchResult
			meta []byte
		)
		if err := rows.Scan(&r.DocumentID, &r.ChunkIndex, &r.Content, &meta); err != nil {
			return nil, classify("scan keyword hit", err)
		}
		if r.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, err
		}
		r.Mode = models.SearchModeKeyword
		out = append(out, r)
	}
	return out, classify("keyword search", rows.Err())
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// keywordPatterns turns a free-text query into deduplicated ILIKE patterns.
// Single-character terms match almost everything and are dropped.
func keywordPatterns(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, term := range strings.Fields(strings.ToLower(query)) {
		term = strings.Trim(term, `.,;:!?"'()[]{}`)
		if len([]rune(term)) < 2 || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, "%"+likeEscaper.Replace(term)+"%")
	}
	return out
}

func marshalMetadata(meta map[string]any) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalMetadata(raw []byte) (map[string]any, error) {
	meta := map[string]any{}
	if len(raw) == 0 {
		return meta, nil
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}
