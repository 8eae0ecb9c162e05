package core

import (
	"context"

	"github.com/markdave123-py/docindex/internal/models"
)

// PendingFilter selects documents for a batch run.
// Force includes documents that are already processed; Limit <= 0 means no limit.
type PendingFilter struct {
	Force bool
	Limit int
}

// DocumentStore is the document metadata collaborator.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListPendingDocuments(ctx context.Context, filter PendingFilter) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.Status) error
	UpdateDocumentState(ctx context.Context, id string, state models.ProcessingState) error
}

// ChunkStore persists chunk rows keyed by (doc_id, chunk_index) and runs similarity search.
type ChunkStore interface {
	// UpsertDocumentChunks writes all chunks of one document in one transaction.
	UpsertDocumentChunks(ctx context.Context, docID string, chunks []models.DocumentChunk) error
	// DeleteChunksAfter removes rows of docID with chunk_index > maxIndex.
	DeleteChunksAfter(ctx context.Context, docID string, maxIndex int) (int64, error)
	DeleteDocumentChunks(ctx context.Context, docID string) (int64, error)

	MatchDocumentChunks(ctx context.Context, queryVec []float32, threshold float64, limit int) ([]models.SearchResult, error)
	KeywordSearchChunks(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
}

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	DocumentStore
	ChunkStore
	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
// Keys are relative to the bucket the client was built for.
type ObjectClient interface {
	UploadFile(ctx context.Context, key string, data []byte, contentType string) error
	// GetFile returns a *DownloadError on failure.
	GetFile(ctx context.Context, key string) ([]byte, error)
	RemoveFiles(ctx context.Context, keys []string) error
}
