package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL   string
	AwsAccessKey  string
	AwsSecretKey  string
	AwsRegion     string
	BucketName    string
	SslCertPath   string
	EmbedProvider string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string
	LogLevel      string
	LogPretty     bool
	Port          string
	BatchInterval time.Duration

	Ingest IngestConfig
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// maxIndexedDimensions is the largest vector pgvector's hnsw index accepts.
const maxIndexedDimensions = 2000

// EmbeddingDefaults returns the model and vector length used for provider
// when EMBED_MODEL and EMBED_DIM are unset.
func EmbeddingDefaults(provider string) (model string, dims int) {
	if provider == ProviderGemini {
		return "text-embedding-004", 768
	}
	return "text-embedding-3-small", 1536
}

// Validate checks the ingest settings and that the embedding model belongs
// to the configured provider and returns vectors of the configured length.
func (c *Config) Validate() error {
	model := c.Ingest.EmbeddingModel
	errs := []error{c.Ingest.Validate(), checkModelDims(model, c.Ingest.EmbeddingDimensions)}
	switch c.EmbedProvider {
	case ProviderOpenAI, "":
		if isGeminiModel(model) {
			errs = append(errs, fmt.Errorf("embedding model %q is a gemini model but EMBED_PROVIDER is openai", model))
		}
	case ProviderGemini:
		if isOpenAIModel(model) {
			errs = append(errs, fmt.Errorf("embedding model %q is an openai model but EMBED_PROVIDER is gemini", model))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q (want openai or gemini)", c.EmbedProvider))
	}
	return errors.Join(errs...)
}

type modelDims struct {
	dims        int
	shortenable bool
}

// knownModels lists the vector length each model returns. The
// text-embedding-3 models accept any shorter length.
var knownModels = map[string]modelDims{
	"text-embedding-3-small": {1536, true},
	"text-embedding-3-large": {3072, true},
	"text-embedding-ada-002": {1536, false},
	"text-embedding-004":     {768, false},
	"embedding-001":          {768, false},
	"gemini-embedding-001":   {3072, false},
}

func checkModelDims(model string, dims int) error {
	known, ok := knownModels[strings.TrimPrefix(model, "models/")]
	if !ok {
		return nil
	}
	if dims > known.dims || (!known.shortenable && dims != known.dims) {
		return fmt.Errorf("embedding model %q returns %d dimensions, EMBED_DIM is %d", model, known.dims, dims)
	}
	return nil
}

func isOpenAIModel(model string) bool {
	return strings.HasPrefix(model, "text-embedding-3") || strings.HasPrefix(model, "text-embedding-ada")
}

func isGeminiModel(model string) bool {
	m := strings.TrimPrefix(model, "models/")
	return strings.HasPrefix(m, "gemini-") || m == "text-embedding-004" || m == "embedding-001"
}

// IngestConfig is the single set of tuning knobs for the ingestion pipeline.
//
// ChunkSize/ChunkOverlap: chunk bound and overlap window, in characters.
// MinChunkLength:         chunks shorter than this are dropped (page headers, stray numbers).
// EmbeddingDimensions:    every stored vector must have exactly this length, at most 2000.
// BatchSize/Concurrency:  inputs per embeddings request and parallel requests.
// Delay:                  pause after each successful batch to stay under provider limits.
// RetryMax:               attempts per batch, and per document for embed+store.
// OCRMinTextLength:       PDFs with less direct text than this are treated as scans.
type IngestConfig struct {
	ChunkSize           int
	ChunkOverlap        int
	MinChunkLength      int
	EmbeddingModel      string
	EmbeddingDimensions int
	BatchSize           int
	Concurrency         int
	Delay               time.Duration
	RetryMax            int
	EmbedTimeout        time.Duration
	OCRMinTextLength    int
	OCRMinImagePixels   int
	OCRLanguages        []string
	SimilarityThreshold float64
	MaxResults          int
	DocumentConcurrency int
}

// DefaultIngestConfig mirrors the values the pipeline has been tuned with.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ChunkSize:           1000,
		ChunkOverlap:        200,
		MinChunkLength:      20,
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 1536,
		BatchSize:           10,
		Concurrency:         3,
		Delay:               100 * time.Millisecond,
		RetryMax:            5,
		EmbedTimeout:        2 * time.Minute,
		OCRMinTextLength:    100,
		OCRMinImagePixels:   32,
		OCRLanguages:        []string{"nld", "eng"},
		SimilarityThreshold: 0.7,
		MaxResults:          5,
		DocumentConcurrency: 2,
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c IngestConfig) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap))
	}
	if c.EmbeddingModel == "" {
		errs = append(errs, errors.New("embedding model is empty"))
	}
	if c.EmbeddingDimensions <= 0 || c.EmbeddingDimensions > maxIndexedDimensions {
		errs = append(errs, fmt.Errorf("embedding dimensions must be in [1, %d], got %d", maxIndexedDimensions, c.EmbeddingDimensions))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.Concurrency <= 0 || c.DocumentConcurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.RetryMax <= 0 {
		errs = append(errs, fmt.Errorf("retry max must be positive, got %d", c.RetryMax))
	}
	if c.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max results must be positive, got %d", c.MaxResults))
	}
	return errors.Join(errs...)
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	def := DefaultIngestConfig()
	provider := getEnv("EMBED_PROVIDER", ProviderOpenAI)
	def.EmbeddingModel, def.EmbeddingDimensions = EmbeddingDefaults(provider)
	cfg := &Config{
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		AwsAccessKey:  getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:  getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:     getEnv("AWS_REGION", "eu-west-1"),
		BucketName:    getEnv("BUCKET_NAME", "docindex-documents"),
		SslCertPath:   getEnv("SSL_CERT_PATH", ""),
		EmbedProvider: provider,
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPretty:     getEnvBool("LOG_PRETTY", false),
		Port:          getEnv("PORT", "8080"),
		BatchInterval: getEnvDuration("BATCH_INTERVAL", 0),

		Ingest: IngestConfig{
			ChunkSize:           getEnvInt("CHUNK_SIZE", def.ChunkSize),
			ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", def.ChunkOverlap),
			MinChunkLength:      getEnvInt("MIN_CHUNK_LENGTH", def.MinChunkLength),
			EmbeddingModel:      getEnv("EMBED_MODEL", def.EmbeddingModel),
			EmbeddingDimensions: getEnvInt("EMBED_DIM", def.EmbeddingDimensions),
			BatchSize:           getEnvInt("EMBED_BATCH_SIZE", def.BatchSize),
			Concurrency:         getEnvInt("EMBED_CONCURRENCY", def.Concurrency),
			Delay:               getEnvDuration("EMBED_DELAY", def.Delay),
			RetryMax:            getEnvInt("EMBED_RETRY_MAX", def.RetryMax),
			EmbedTimeout:        getEnvDuration("EMBED_TIMEOUT", def.EmbedTimeout),
			OCRMinTextLength:    getEnvInt("OCR_MIN_TEXT_LENGTH", def.OCRMinTextLength),
			OCRMinImagePixels:   getEnvInt("OCR_MIN_IMAGE_PIXELS", def.OCRMinImagePixels),
			OCRLanguages:        getEnvList("OCR_LANGUAGES", def.OCRLanguages),
			SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", def.SimilarityThreshold),
			MaxResults:          getEnvInt("MAX_RESULTS", def.MaxResults),
			DocumentConcurrency: getEnvInt("DOCUMENT_CONCURRENCY", def.DocumentConcurrency),
		},
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %t", key, v, def)
		return def
	}
	return b
}

// getEnvDuration accepts Go durations ("250ms", "2m") or a bare number of milliseconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
	return def
}

func getEnvList(key string, def []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == '+' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
