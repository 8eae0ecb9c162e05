package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/core"
	ingest "github.com/markdave123-py/docindex/internal/core/ingestion_engine"
	"github.com/markdave123-py/docindex/internal/logger"
	"github.com/markdave123-py/docindex/internal/models"
)

// DocumentStore is the metadata store plus row deletion.
type DocumentStore interface {
	core.DocumentStore
	DeleteDocument(ctx context.Context, id string) error
}

type chunkRemover interface {
	DeleteByDocument(ctx context.Context, docID string) error
}

// Tags classify a document. They are copied into every chunk's metadata.
type Tags struct {
	Department string
	Category   string
	Subject    string
	Version    string
}

type DocumentService struct {
	db      DocumentStore
	storage core.ObjectClient
	chunks  chunkRemover
	log     zerolog.Logger
}

func NewDocumentService(db DocumentStore, storage core.ObjectClient, chunks chunkRemover, log zerolog.Logger) *DocumentService {
	return &DocumentService{db: db, storage: storage, chunks: chunks, log: logger.Component(log, "documents")}
}

// Register uploads data and inserts a document row that the next batch run will pick up.
func (s *DocumentService) Register(ctx context.Context, filename string, data []byte, tags Tags) (*models.Document, error) {
	name := sanitizeFilename(filename)
	if name == "" {
		return nil, errors.New("filename is empty")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s is empty", name)
	}

	docID := uuid.NewString()
	key := objectKey(docID, name)
	contentType := mimetype.Detect(data).String()

	if err := s.storage.UploadFile(ctx, key, data, contentType); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:               docID,
		FileName:         name,
		StoragePath:      key,
		MimeType:         &contentType,
		Department:       tags.Department,
		Category:         tags.Category,
		Subject:          tags.Subject,
		Version:          tags.Version,
		ReadyForIndexing: true,
		Status:           models.StatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if rmErr := s.storage.RemoveFiles(ctx, []string{key}); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("key", key).Msg("orphaned upload")
		}
		return nil, fmt.Errorf("create document: %w", err)
	}

	s.log.Info().Str("doc_id", doc.ID).Str("key", key).Str("mime", contentType).Int("bytes", len(data)).Msg("document registered")
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	return s.db.GetDocumentByID(ctx, id)
}

// Remove deletes the chunks, the blob and the row, in that order.
func (s *DocumentService) Remove(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if err := s.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if key := ingest.ObjectKey(doc.StoragePath); key != "" {
		if err := s.storage.RemoveFiles(ctx, []string{key}); err != nil {
			return err
		}
	}
	if err := s.db.DeleteDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	s.log.Info().Str("doc_id", doc.ID).Msg("document removed")
	return nil
}

// objectKey creates a consistent S3 key layout.
func objectKey(docID, filename string) string {
	return path.Join("documents", docID, filename)
}

// sanitizeFilename keeps the base name and replaces characters that are awkward in object keys.
func sanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/")
	filename = path.Base(filename)
	if filename == "." || filename == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			return r
		case unicode.IsSpace(r):
			return '_'
		default:
			return '-'
		}
	}, filename)
}
