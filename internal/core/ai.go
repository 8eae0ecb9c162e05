package core

import "context"

// EmbeddingProvider turns texts into vectors with one request per call.
// Implementations return RetryableError for rate limits, 5xx responses and transport failures.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, model string, texts []string) ([][]float32, error)
}
