package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/autoreport-rag/internal/config"
	"github.com/kirillkom/autoreport-rag/internal/core/domain"
	"github.com/kirillkom/autoreport-rag/internal/core/ports"
	"github.com/kirillkom/autoreport-rag/internal/core/usecase"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/catalog/bolt"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/extractor/xlsx"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/llm"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector/memory"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/autoreport-rag/internal/infrastructure/vector/sqlite"
	"github.com/kirillkom/autoreport-rag/internal/observability/metrics"
)

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Companies []domain.Company

	// Queue is nil when NATS_URL is empty.
	Queue       *nats.Queue
	Index       ports.VectorIndex
	Extractors  *extractor.Registry
	Sessions    *usecase.SessionStore
	Transcripts ports.TranscriptReader
	Metrics     *metrics.HTTPServerMetrics

	IngestUC *usecase.IngestUseCase
	QueryUC  *usecase.QueryUseCase

	transcriptLog ports.TranscriptStore
	closers       []func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	companies := make([]domain.Company, 0, len(cfg.RAGCompanies))
	for _, c := range cfg.RAGCompanies {
		companies = append(companies, domain.Company(c))
	}
	app.Companies = companies
	followUp, err := usecase.ParseFollowUpPolicy(cfg.RAGFollowUpPolicy)
	if err != nil {
		return nil, err
	}

	resCfg := resilience.DefaultConfig()
	resCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	resCfg.RetryInitialBackoff = cfg.RetryInitialBackoff
	resCfg.BreakerEnabled = cfg.BreakerEnabled
	executor := resilience.NewExecutorWithLogger(resCfg, logger)
	caller := llm.Caller{Timeout: cfg.GatewayTimeout, Executor: executor}

	embedder, generator, err := newGateways(cfg, caller)
	if err != nil {
		return nil, err
	}

	app.Index, err = app.openIndex(cfg, executor)
	if err != nil {
		return nil, err
	}

	catalog, err := app.openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	storage, err := localfs.New(cfg.ReportsDir)
	if err != nil {
		return nil, fmt.Errorf("init report storage: %w", err)
	}

	var events ports.EventPublisher
	var inline *inlineReindexer
	if cfg.NATSURL != "" {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			IndexedSubject:     cfg.NATSIndexedSubject,
			ReindexSubject:     cfg.NATSReindexSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)
		events = queue
	} else {
		inline = &inlineReindexer{logger: logger}
		events = inline
	}

	gate := usecase.NewIndexGate()
	app.Extractors = extractor.NewRegistry(
		plaintext.NewExtractor(),
		pdf.NewExtractor(),
		xlsx.NewExtractor(),
	)
	app.IngestUC = usecase.NewIngestUseCase(
		usecase.IngestConfig{ReportsDir: cfg.ReportsDir, Companies: companies, Gate: gate},
		app.Extractors,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		app.Index,
		catalog,
		storage,
		events,
		logger,
	)
	if inline != nil {
		inline.indexer = app.IngestUC
	}

	app.Metrics = metrics.NewHTTPServerMetrics(service)
	app.Sessions = usecase.NewSessionStore(cfg.RAGHistoryWindow, usecase.DefaultMaxSessions)

	planner := usecase.NewPlanner(usecase.PlannerConfig{
		Companies: companies,
		TopK:      cfg.RAGTopK,
		WideTopK:  cfg.RAGTopKWide,
		FollowUp:  followUp,
	})
	retriever := usecase.NewRetriever(embedder, app.Index, cfg.RAGQueryExpansion)
	composer := usecase.NewComposer(generator, usecase.ComposerConfig{
		Companies:       companies,
		HistoryTurns:    cfg.RAGHistoryTurns,
		MaxContextChars: cfg.RAGMaxContextChars,
	})

	app.QueryUC = usecase.NewQueryUseCase(app.Index, gate, planner, retriever, composer, app.transcriptLog, app.Metrics, logger)

	logger.Info("app_initialized",
		"service", service,
		"llm_provider", cfg.LLMProvider,
		"vector_backend", cfg.VectorBackend,
		"catalog_backend", cfg.CatalogBackend,
		"nats_enabled", app.Queue != nil,
	)
	return app, nil
}

func newGateways(cfg config.Config, caller llm.Caller) (ports.Embedder, ports.Generator, error) {
	switch cfg.LLMProvider {
	case "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, caller)
		return ollama.NewEmbedder(client), ollama.NewGenerator(client), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, nil, fmt.Errorf("%w: OPENAI_API_KEY is required for the openai provider", domain.ErrUnauthorized)
		}
		client := openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIGenModel, cfg.OpenAIEmbedModel, caller)
		return openai.NewEmbedder(client), openai.NewGenerator(client), nil
	default:
		return nil, nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

func (a *App) openIndex(cfg config.Config, executor *resilience.Executor) (ports.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		index, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite index: %w", err)
		}
		a.closers = append(a.closers, func() { _ = index.Close() })
		return index, nil
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor), nil
	default:
		return nil, fmt.Errorf("unknown VECTOR_BACKEND %q", cfg.VectorBackend)
	}
}

// openCatalog also sets Transcripts when the postgres backend is used.
func (a *App) openCatalog(ctx context.Context, cfg config.Config) (ports.ReportCatalog, error) {
	switch cfg.CatalogBackend {
	case "bolt":
		catalog, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("open bolt catalog: %w", err)
		}
		a.closers = append(a.closers, func() { _ = catalog.Close() })
		return catalog, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		transcripts := postgres.NewTranscriptRepository(db)
		a.Transcripts = transcripts
		a.transcriptLog = transcripts
		return postgres.NewReportRepository(db), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown CATALOG_BACKEND %q", cfg.CatalogBackend)
	}
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// inlineReindexer stands in for the queue when NATS is not configured: a
// reindex request rebuilds the index in-process, one rebuild at a time.
type inlineReindexer struct {
	logger  *slog.Logger
	indexer ports.Indexer

	mu      sync.Mutex
	running bool
	pending bool
}

func (r *inlineReindexer) PublishIndexed(_ context.Context, event domain.IndexedEvent) error {
	r.logger.Info("index_rebuilt", "documents", event.Documents, "passages", event.Passages)
	return nil
}

func (r *inlineReindexer) RequestReindex(_ context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexer == nil {
		return nil
	}
	if r.running {
		r.pending = true
		return nil
	}
	r.running = true
	go r.loop(reason)
	return nil
}

func (r *inlineReindexer) loop(reason string) {
	for {
		started := time.Now()
		stats, err := r.indexer.Rebuild(context.Background())
		if err != nil {
			r.logger.Error("report_reindex_failed", "reason", reason, "error", err)
		} else {
			r.logger.Info("report_reindex_completed",
				"reason", reason,
				"passages", stats.Passages,
				"duration_ms", time.Since(started).Milliseconds(),
			)
		}

		r.mu.Lock()
		if !r.pending {
			r.running = false
			r.mu.Unlock()
			return
		}
		r.pending = false
		reason = "coalesced requests"
		r.mu.Unlock()
	}
}
