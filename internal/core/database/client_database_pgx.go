package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	"github.com/markdave123-py/docindex/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	dsn, err := buildDSN(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	configurePool(db)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, classify("ping db", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.Ingest.EmbeddingDimensions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

const documentColumns = `
	id, filename, storage_path, mime_type, department, category, subject, version,
	ready_for_indexing, processed, needs_ocr, chunk_count, retry_count, last_error,
	status, processed_at, last_updated, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var (
		d      models.Document
		status string
	)
	err := row.Scan(
		&d.ID, &d.FileName, &d.StoragePath, &d.MimeType, &d.Department, &d.Category, &d.Subject, &d.Version,
		&d.ReadyForIndexing, &d.Processed, &d.NeedsOCR, &d.ChunkCount, &d.RetryCount, &d.LastError,
		&status, &d.ProcessedAt, &d.LastUpdated, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = models.Status(status)
	return &d, nil
}

// CreateDocument inserts doc, assigning an id when it has none.
func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	const q = `
		INSERT INTO documents
			(id, filename, storage_path, mime_type, department, category, subject, version,
			 ready_for_indexing, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING last_updated, created_at
	`
	err := c.db.QueryRowContext(ctx, q,
		doc.ID, doc.FileName, doc.StoragePath, doc.MimeType, doc.Department, doc.Category, doc.Subject, doc.Version,
		doc.ReadyForIndexing, string(doc.Status),
	).Scan(&doc.LastUpdated, &doc.CreatedAt)
	return classify("insert document", err)
}

// GetDocumentByID returns nil, nil when no row matches.
func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	d, err := scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify("get document", err)
	}
	return d, nil
}

// ListPendingDocuments returns indexable documents, oldest update first.
func (c *DatabaseClient) ListPendingDocuments(ctx context.Context, filter core.PendingFilter) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE ready_for_indexing AND ($1 OR NOT processed)
		ORDER BY last_updated ASC, id ASC
		LIMIT NULLIF($2, 0)`

	limit := filter.Limit
	if limit < 0 {
		limit = 0
	}
	rows, err := c.db.QueryContext(ctx, q, filter.Force, limit)
	if err != nil {
		return nil, classify("list pending documents", err)
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, classify("scan document", err)
		}
		out = append(out, *d)
	}
	return out, classify("list pending documents", rows.Err())
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status models.Status) error {
	const q = `
		UPDATE documents
		SET status = $2, last_updated = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, string(status))
	if err != nil {
		return classify("update document status", err)
	}
	return requireRow(res, id)
}

// UpdateDocumentState writes every orchestrator-owned column at once.
// A nil MimeType keeps the stored value.
func (c *DatabaseClient) UpdateDocumentState(ctx context.Context, id string, st models.ProcessingState) error {
	const q = `
		UPDATE documents
		SET status = $2,
		    processed = $3,
		    needs_ocr = $4,
		    chunk_count = $5,
		    retry_count = $6,
		    last_error = $7,
		    processed_at = $8,
		    mime_type = COALESCE($9, mime_type),
		    last_updated = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id,
		string(st.Status), st.Processed, st.NeedsOCR, st.ChunkCount, st.RetryCount,
		st.LastError, st.ProcessedAt, st.MimeType,
	)
	if err != nil {
		return classify("update document state", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// DeleteDocument removes the row; its chunks go with it through ON DELETE CASCADE.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return classify("delete document", err)
	}
	return requireRow(res, id)
}
