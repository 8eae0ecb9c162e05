package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/markdave123-py/docindex/internal/config"
	"github.com/markdave123-py/docindex/internal/core"
	db "github.com/markdave123-py/docindex/internal/core/database"
	ingest "github.com/markdave123-py/docindex/internal/core/ingestion_engine"
	"github.com/markdave123-py/docindex/internal/core/llm"
	objectclient "github.com/markdave123-py/docindex/internal/core/object-client"
	"github.com/markdave123-py/docindex/internal/metrics"
	"github.com/markdave123-py/docindex/internal/services"
)

// App holds the wired pipeline. Every command builds one and closes it on exit.
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	DBClient  *db.DatabaseClient
	Objects   *objectclient.S3Client
	Ingestor  *ingest.DocumentIngestor
	Runner    *ingest.BatchRunner
	Retriever *ingest.Retriever
	Documents *services.DocumentService

	closers []io.Closer
}

func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.Metrics = metrics.New(a.Registry)

	dbClient, err := db.NewDatabaseClient(appCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	a.DBClient = dbClient
	a.closers = append(a.closers, dbClient)
	log.Info().Msg("database initialized and ready")

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("object storage: %w", err)
	}
	a.Objects = objClient

	provider, err := newEmbeddingProvider(appCtx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	ic := cfg.Ingest
	renderer := ingest.NewPopplerRenderer(ingest.ExecRunner{}, "")
	ocr := ingest.NewOCREngine(ingest.TesseractFactory(ic.OCRLanguages), renderer, ic, log)
	extractor := ingest.NewDocconvExtractor(ocr, ic.OCRMinTextLength, log)
	generator := ingest.NewEmbeddingGenerator(provider, ingest.EmbedOptionsFromConfig(ic), log, a.Metrics)
	store := ingest.NewVectorStore(dbClient, ic.EmbeddingDimensions, log, a.Metrics)

	a.Ingestor = ingest.NewDocumentIngestor(dbClient, objClient, extractor, generator, store, ic, log, a.Metrics)
	a.Runner = ingest.NewBatchRunner(dbClient, a.Ingestor, ic.DocumentConcurrency, log, a.Metrics)
	a.Retriever = ingest.NewRetriever(provider, store, ic, log)
	a.Documents = services.NewDocumentService(dbClient, objClient, store, log)

	log.Info().
		Str("provider", cfg.EmbedProvider).
		Str("model", ic.EmbeddingModel).
		Int("dimensions", ic.EmbeddingDimensions).
		Msg("pipeline ready")
	return a, nil
}

// NewServer builds the ops server on top of the wired pipeline.
func (a *App) NewServer() *Server {
	return NewServer(a.Config.Port, a.Config.BatchInterval, ServerDeps{
		Search:   a.Retriever,
		Queue:    a.Ingestor,
		Runner:   a.Runner,
		Gatherer: a.Registry,
	}, a.Log)
}

func newEmbeddingProvider(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbedProvider {
	case config.ProviderOpenAI, "":
		return llm.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Ingest.EmbeddingDimensions, nil)
	case config.ProviderGemini:
		return llm.NewGeminiEmbedder(ctx, cfg.GeminiAPIKey)
	default:
		return nil, fmt.Errorf("unknown EMBED_PROVIDER %q (want openai or gemini)", cfg.EmbedProvider)
	}
}

func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Log.Warn().Err(err).Msg("closing resources")
	}
}
