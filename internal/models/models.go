package models

import (
	"time"
)

// DocumentKind is the extraction classification of a document.
type DocumentKind string

const (
	KindPDF     DocumentKind = "pdf"
	KindDocx    DocumentKind = "docx"
	KindTxt     DocumentKind = "txt"
	KindMd      DocumentKind = "md"
	KindImage   DocumentKind = "image"
	KindPDFScan DocumentKind = "pdf-scan"
	KindUnknown DocumentKind = "unknown"
)

// Status is the orchestrator phase last persisted for a document.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusExtracting  Status = "extracting"
	StatusNeedsOCR    Status = "needs_ocr"
	StatusChunking    Status = "chunking"
	StatusEmbedding   Status = "embedding"
	StatusRetrying    Status = "retrying"
	StatusStoring     Status = "storing"
	StatusProcessed   Status = "processed"
	StatusFailed      Status = "failed"
	StatusSkipped     Status = "skipped"
	StatusDeferred    Status = "deferred"
)

// Document represents one ingested file and its processing state.
type Document struct {
	ID          string  `db:"id" json:"id"`
	FileName    string  `db:"filename" json:"filename"`
	StoragePath string  `db:"storage_path" json:"storage_path"` // object key, or a legacy S3 URL
	MimeType    *string `db:"mime_type" json:"mime_type"`       // as uploaded; not trusted

	Department string `db:"department" json:"department,omitempty"`
	Category   string `db:"category" json:"category,omitempty"`
	Subject    string `db:"subject" json:"subject,omitempty"`
	Version    string `db:"version" json:"version,omitempty"`

	ReadyForIndexing bool       `db:"ready_for_indexing" json:"ready_for_indexing"`
	Processed        bool       `db:"processed" json:"processed"`
	NeedsOCR         bool       `db:"needs_ocr" json:"needs_ocr"`
	ChunkCount       int        `db:"chunk_count" json:"chunk_count"`
	RetryCount       int        `db:"retry_count" json:"retry_count"`
	LastError        *string    `db:"last_error" json:"last_error"`
	Status           Status     `db:"status" json:"status"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at"`
	LastUpdated      time.Time  `db:"last_updated" json:"last_updated"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// Tags returns the classification tags that are copied into chunk metadata.
func (d *Document) Tags() map[string]string {
	tags := map[string]string{}
	for k, v := range map[string]string{
		"department": d.Department,
		"category":   d.Category,
		"subject":    d.Subject,
		"version":    d.Version,
	} {
		if v != "" {
			tags[k] = v
		}
	}
	return tags
}

// ProcessingState is the set of fields the orchestrator writes in a single update.
type ProcessingState struct {
	Status      Status
	Processed   bool
	NeedsOCR    bool
	ChunkCount  int
	RetryCount  int
	LastError   *string
	ProcessedAt *time.Time
	MimeType    *string
}

// DocumentChunk represents one text chunk from a document.
// (DocumentID, ChunkIndex) is the identity; ID is derived from it.
type DocumentChunk struct {
	ID         string         `db:"id" json:"id"`
	DocumentID string         `db:"doc_id" json:"doc_id"`
	ChunkIndex int            `db:"chunk_index" json:"chunk_index"`
	Content    string         `db:"content" json:"content"`
	Embedding  []float32      `db:"embedding" json:"embedding"` // pgvector column
	Metadata   map[string]any `db:"metadata" json:"metadata"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// ExtractionResult is the transient output of the extraction engine.
type ExtractionResult struct {
	Kind         DocumentKind `json:"kind"`
	Mime         string       `json:"mime"`
	Text         string       `json:"text"`
	OCRAttempted bool         `json:"ocr_attempted"`
	UsedOCR      bool         `json:"used_ocr"`
}

// SearchMode tells whether a result came from vector similarity or the keyword fallback.
type SearchMode string

const (
	SearchModeVector  SearchMode = "vector"
	SearchModeKeyword SearchMode = "keyword"
)

// SearchResult is one ranked chunk. Similarity is nil for keyword fallback rows.
type SearchResult struct {
	DocumentID string         `json:"doc_id"`
	ChunkIndex int            `json:"chunk_index"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata"`
	Similarity *float64       `json:"similarity"`
	Mode       SearchMode     `json:"mode"`
}

// RunSummary aggregates one batch run.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	OK          bool      `json:"ok"`
	ProcessedOK int       `json:"processed_ok"`
	NeedsOCR    int       `json:"needs_ocr"`
	Retried     int       `json:"retried"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Deferred    int       `json:"deferred"`
	Total       int       `json:"total"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Error       string    `json:"error,omitempty"`
}
