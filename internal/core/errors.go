package core

import (
	"errors"
	"fmt"
)

// Kind is the closed set of pipeline error classes.
type Kind int

const (
	// KindUnknown is anything not raised through the constructors below.
	// It is treated as non-retryable.
	KindUnknown Kind = iota
	// KindContent: the input is structurally unprocessable. Not retried.
	KindContent
	// KindNeedsOCR: a content error where text requires OCR and OCR failed or could not run.
	KindNeedsOCR
	// KindRetryable: a transient condition, or an exhausted retry budget.
	KindRetryable
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindNeedsOCR:
		return "needs-ocr"
	case KindRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Machine-readable codes carried by Error. They are persisted verbatim as last_error.
const (
	CodeUnsupportedMime     = "unsupported-mime"
	CodeImageEmpty          = "image-empty"
	CodeImageTooSmall       = "image-too-small"
	CodeOCRInitFailed       = "ocr-initialisation-failed"
	CodeOCRProcessingFailed = "ocr-processing-failed"
	CodePDFNoPagesRendered  = "pdf-no-pages-rendered"
	CodeRateLimited         = "rate-limited"
	CodeUpstreamUnavailable = "upstream-unavailable"
	CodeTransport           = "transport-error"
	CodeTimeout             = "timeout"
	CodeStorageUnavailable  = "storage-unavailable"
	CodeRetryExhausted      = "retry-exhausted"
)

// Error is the typed pipeline error. Code is stable, Detail is for humans.
type Error struct {
	Kind   Kind
	Code   string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Code
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ContentError marks input that will never become processable on retry.
func ContentError(code, detail string) error {
	return &Error{Kind: KindContent, Code: code, Detail: detail}
}

// NeedsOcrError marks a document whose text can only come from OCR, and OCR did not deliver.
func NeedsOcrError(code, detail string, err error) error {
	return &Error{Kind: KindNeedsOCR, Code: code, Detail: detail, Err: err}
}

// RetryableError marks a transient failure.
func RetryableError(code, detail string, err error) error {
	return &Error{Kind: KindRetryable, Code: code, Detail: detail, Err: err}
}

// KindOf returns the class of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsContent reports content errors, including the needs-OCR subtype.
func IsContent(err error) bool {
	k := KindOf(err)
	return k == KindContent || k == KindNeedsOCR
}

func IsNeedsOCR(err error) bool { return KindOf(err) == KindNeedsOCR }

func IsRetryable(err error) bool { return KindOf(err) == KindRetryable }

// Embedding response validation failures. These are never retried.
var (
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")
	ErrEmbeddingMissing       = errors.New("embedding missing")
	ErrEmbeddingDimension     = errors.New("embedding dimension mismatch")
)

// DownloadError carries the status a blob download failed with (0 when there was no response).
type DownloadError struct {
	Status int
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed (status %d): %v", e.Status, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
