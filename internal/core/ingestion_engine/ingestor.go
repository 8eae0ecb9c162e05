package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/docindex/internal/models"
)

var _ Ingestor = (*DocumentIngestor)(nil)

type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, docID string) error
	ProcessOne(ctx context.Context, docID string) (*ProcessResult, error)
	ProcessDocument(ctx context.Context, doc *models.Document, opts ProcessOptions) (int, error)
}
