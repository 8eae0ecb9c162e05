package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIngestConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultIngestConfig().Validate())
}

func TestIngestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*IngestConfig)
	}{
		{"zero chunk size", func(c *IngestConfig) { c.ChunkSize = 0 }},
		{"overlap not smaller than chunk", func(c *IngestConfig) { c.ChunkOverlap = c.ChunkSize }},
		{"negative overlap", func(c *IngestConfig) { c.ChunkOverlap = -1 }},
		{"empty model", func(c *IngestConfig) { c.EmbeddingModel = "" }},
		{"zero dimensions", func(c *IngestConfig) { c.EmbeddingDimensions = 0 }},
		{"dimensions beyond hnsw limit", func(c *IngestConfig) { c.EmbeddingDimensions = 3072 }},
		{"zero batch", func(c *IngestConfig) { c.BatchSize = 0 }},
		{"zero concurrency", func(c *IngestConfig) { c.Concurrency = 0 }},
		{"zero retries", func(c *IngestConfig) { c.RetryMax = 0 }},
		{"zero results", func(c *IngestConfig) { c.MaxResults = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultIngestConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// unsetEnv removes key for the duration of the test.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestLoadConfigProviderDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/docindex")
	unsetEnv(t, "EMBED_MODEL")
	unsetEnv(t, "EMBED_DIM")

	t.Run("openai", func(t *testing.T) {
		t.Setenv("EMBED_PROVIDER", "openai")
		cfg := LoadConfig()
		assert.Equal(t, "text-embedding-3-small", cfg.Ingest.EmbeddingModel)
		assert.Equal(t, 1536, cfg.Ingest.EmbeddingDimensions)
	})

	t.Run("gemini", func(t *testing.T) {
		t.Setenv("EMBED_PROVIDER", "gemini")
		cfg := LoadConfig()
		assert.Equal(t, "text-embedding-004", cfg.Ingest.EmbeddingModel)
		assert.Equal(t, 768, cfg.Ingest.EmbeddingDimensions)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("explicit model wins", func(t *testing.T) {
		t.Setenv("EMBED_PROVIDER", "gemini")
		t.Setenv("EMBED_MODEL", "embedding-001")
		t.Setenv("EMBED_DIM", "768")
		cfg := LoadConfig()
		assert.Equal(t, "embedding-001", cfg.Ingest.EmbeddingModel)
		assert.Equal(t, 768, cfg.Ingest.EmbeddingDimensions)
	})
}

func TestConfigValidateProviderModel(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
		dims     int
		ok       bool
	}{
		{"openai default", "openai", "text-embedding-3-small", 1536, true},
		{"openai shortened", "openai", "text-embedding-3-large", 1024, true},
		{"openai compatible server", "openai", "nomic-embed-text", 768, true},
		{"openai with gemini model", "openai", "text-embedding-004", 768, false},
		{"openai with prefixed gemini model", "", "models/gemini-embedding-001", 768, false},
		{"ada is not shortenable", "openai", "text-embedding-ada-002", 1024, false},
		{"longer than the model returns", "openai", "text-embedding-3-small", 1800, false},
		{"gemini default", "gemini", "text-embedding-004", 768, true},
		{"gemini with openai dimensions", "gemini", "text-embedding-004", 1536, false},
		{"gemini vectors too long to index", "gemini", "gemini-embedding-001", 3072, false},
		{"gemini with openai model", "gemini", "text-embedding-3-small", 1536, false},
		{"gemini with ada", "gemini", "text-embedding-ada-002", 1536, false},
		{"unknown provider", "cohere", "embed-multilingual-v3.0", 1024, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbedProvider: tt.provider, Ingest: DefaultIngestConfig()}
			cfg.Ingest.EmbeddingModel = tt.model
			cfg.Ingest.EmbeddingDimensions = tt.dims
			if tt.ok {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.Error(t, cfg.Validate())
			}
		})
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("DOCINDEX_TEST_INT", "42")
	t.Setenv("DOCINDEX_TEST_BAD_INT", "forty")
	t.Setenv("DOCINDEX_TEST_FLOAT", "0.55")
	t.Setenv("DOCINDEX_TEST_BOOL", "true")
	t.Setenv("DOCINDEX_TEST_DUR", "250ms")
	t.Setenv("DOCINDEX_TEST_DUR_MS", "1500")
	t.Setenv("DOCINDEX_TEST_LIST", "nld+eng, deu")

	assert.Equal(t, 42, getEnvInt("DOCINDEX_TEST_INT", 1))
	assert.Equal(t, 7, getEnvInt("DOCINDEX_TEST_BAD_INT", 7))
	assert.InDelta(t, 0.55, getEnvFloat("DOCINDEX_TEST_FLOAT", 0), 1e-9)
	assert.True(t, getEnvBool("DOCINDEX_TEST_BOOL", false))
	assert.Equal(t, 250*time.Millisecond, getEnvDuration("DOCINDEX_TEST_DUR", 0))
	assert.Equal(t, 1500*time.Millisecond, getEnvDuration("DOCINDEX_TEST_DUR_MS", 0))
	assert.Equal(t, []string{"nld", "eng", "deu"}, getEnvList("DOCINDEX_TEST_LIST", nil))
	assert.Equal(t, "fallback", getEnv("DOCINDEX_TEST_MISSING", "fallback"))
}
