package core

import (
	"context"

	"github.com/markdave123-py/docindex/internal/models"
)

// DocumentExtractor turns raw bytes into text.
// It only fails with a ContentError or NeedsOcrError; recoverable problems yield empty text.
type DocumentExtractor interface {
	Extract(ctx context.Context, buf []byte, filename string) (*models.ExtractionResult, error)
}

// OCRClient is a stateful recognition worker. Callers must Close it on every path.
type OCRClient interface {
	SetLanguage(langs ...string) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// CommandRunner executes an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}
