package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"

	"ragdocs/internal/adapter/browser"
	"ragdocs/internal/adapter/gemini"
	"ragdocs/internal/adapter/ollama"
	"ragdocs/internal/adapter/openai"
	wstore "ragdocs/internal/adapter/weaviate"
	"ragdocs/internal/apperr"
	"ragdocs/internal/config"
	"ragdocs/internal/embedding"
	"ragdocs/internal/extract"
	"ragdocs/internal/queue"
	"ragdocs/internal/retrieval"
	"ragdocs/internal/vector"
	"ragdocs/internal/worker"
)

// VectorIndex is the part of the vector store the application serves from.
type VectorIndex interface {
	ListSources(ctx context.Context) ([]vector.Source, error)
	DeleteByURL(ctx context.Context, urls []string) error
	CountChunks(ctx context.Context) (int, error)
	Search(ctx context.Context, queryVector []float32, k int) ([]vector.Match, error)
}

// LinkExtractor finds the links on a page.
type LinkExtractor interface {
	ExtractLinks(ctx context.Context, url string) ([]string, error)
}

// Dependencies are the long-lived components built at startup.
type Dependencies struct {
	Queue       *queue.Queue
	VectorStore VectorIndex
	Embedder    retrieval.Embedder
	Extractor   LinkExtractor
	Worker      *worker.Worker
	QueryLog    *retrieval.QueryLogger

	closers []func() error
}

// Close releases components in reverse order of construction.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dependencies{}
	ok := false
	defer func() {
		if !ok {
			if cErr := d.Close(); cErr != nil {
				logger.Warn("failed to release partially built dependencies", "error", cErr)
			}
		}
	}()

	// Queue
	q, err := openQueue(ctx, cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.Queue = q

	// Embeddings
	gateway, err := buildGateway(ctx, cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.Embedder = gateway

	// Weaviate
	wClient, err := newWeaviateClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	vecStore := wstore.NewStore(wClient, cfg.CollectionName)
	if err := EnsureCollectionWithRetry(ctx, vecStore, gateway.Dimension(), cfg.BootstrapRetryAttempts, cfg.BootstrapRetryDelay()); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}
	d.VectorStore = vecStore

	// Extraction
	extractor := extract.New(newRenderer(cfg, logger), logger)
	d.onClose(extractor.Close)
	d.Extractor = extractor

	// Events
	var opts []worker.Option
	opts = append(opts, worker.WithLogger(logger))
	if cfg.NSQDHost != "" {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		d.onClose(func() error { producer.Stop(); return nil })
		opts = append(opts, worker.WithPublisher(producer))
	}

	// Worker
	w, err := worker.New(q, extractor, gateway, vecStore, worker.Config{
		MaxTokens:   cfg.ChunkMaxTokens,
		Overlap:     cfg.ChunkOverlap,
		Concurrency: cfg.WorkerConcurrency,
		ItemTimeout: cfg.ItemTimeout(),
	}, opts...)
	if err != nil {
		return nil, err
	}
	d.onClose(w.Close)
	d.Worker = w

	// Query log
	queryLog, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		logger.Warn("failed to create query logger, falling back to stderr", "error", err)
		queryLog = retrieval.NewQueryLogger(os.Stderr)
	}
	d.onClose(queryLog.Close)
	d.QueryLog = queryLog

	ok = true
	return d, nil
}

func openQueue(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*queue.Queue, error) {
	var store queue.Store
	switch cfg.QueueBackend {
	case config.QueueBackendPostgres:
		db, err := openPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.onClose(db.Close)
		store = queue.NewPostgresStore(db)
	default:
		bs, err := queue.OpenBadgerStore(cfg.QueueDir, false, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open queue: %w", err)
		}
		store = bs
	}

	q := queue.New(store, logger)
	deps.onClose(q.Close)
	if err := q.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover queue: %w", err)
	}
	return q, nil
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := cfg.BootstrapRetryDelay()
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		logger.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		db.Close()
		return nil, fmt.Errorf("migration up error: %w", err)
	}
	return db, nil
}

func buildGateway(ctx context.Context, cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*embedding.Gateway, error) {
	primary, err := NewProvider(ctx, cfg, embedding.ProviderConfig{
		Kind:      embedding.Kind(cfg.EmbeddingProvider),
		Model:     cfg.EmbeddingModel,
		Dimension: cfg.EmbeddingDimension,
	}, deps)
	if err != nil {
		return nil, fmt.Errorf("primary embedding provider: %w", err)
	}

	var fallback embedding.Provider
	if cfg.FallbackProvider != "" {
		fallback, err = NewProvider(ctx, cfg, embedding.ProviderConfig{
			Kind:      embedding.Kind(cfg.FallbackProvider),
			Model:     cfg.FallbackModel,
			Dimension: cfg.FallbackDimension,
		}, deps)
		if err != nil {
			return nil, fmt.Errorf("fallback embedding provider: %w", err)
		}
	}
	return embedding.NewGateway(primary, fallback, logger)
}

// NewProvider builds one embedding provider, filling connection details from cfg.
func NewProvider(ctx context.Context, cfg *config.Config, pc embedding.ProviderConfig, deps *Dependencies) (embedding.Provider, error) {
	switch pc.Kind {
	case embedding.KindOllama:
		pc.BaseURL = cfg.OllamaHost
	case embedding.KindOpenAI:
		pc.BaseURL, pc.APIKey = cfg.OpenAIBaseURL, cfg.OpenAIAPIKey
	case embedding.KindGemini:
		pc.APIKey = cfg.GeminiAPIKey
	}

	pc, err := pc.Resolve()
	if err != nil {
		return nil, err
	}

	switch pc.Kind {
	case embedding.KindOllama:
		o, err := ollama.NewEmbedder(pc.BaseURL, pc.Model, pc.Dimension)
		if err != nil {
			return nil, err
		}
		return o, nil
	case embedding.KindOpenAI:
		o, err := openai.NewEmbedder(pc.APIKey, pc.BaseURL, pc.Model, pc.Dimension)
		if err != nil {
			return nil, err
		}
		return o, nil
	default:
		g, err := gemini.NewEmbedder(ctx, pc.APIKey, pc.Model, pc.Dimension)
		if err != nil {
			return nil, err
		}
		if deps != nil {
			deps.onClose(g.Close)
		}
		return g, nil
	}
}

func newWeaviateClient(cfg *config.Config) (*weaviate.Client, error) {
	wCfg := weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme}
	if cfg.WeaviateAPIKey != "" {
		wCfg.AuthConfig = auth.ApiKey{Value: cfg.WeaviateAPIKey}
	}
	return weaviate.NewClient(wCfg)
}

func newRenderer(cfg *config.Config, logger *slog.Logger) extract.Renderer {
	if cfg.Renderer == config.RendererHTTP {
		return extract.NewHTTPRenderer(extract.HTTPConfig{Timeout: cfg.RenderTimeout()})
	}
	return browser.New(browser.Config{
		RemoteURL: cfg.BrowserURL,
		Timeout:   cfg.RenderTimeout(),
		Logger:    logger,
	})
}

// CollectionEnsurer creates or validates the vector collection.
type CollectionEnsurer interface {
	EnsureCollection(ctx context.Context, dimension int) error
}

// EnsureCollectionWithRetry retries transient failures. Authentication and
// schema mismatches fail immediately.
func EnsureCollectionWithRetry(ctx context.Context, store CollectionEnsurer, dimension, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureCollection(ctx, dimension); err == nil {
			return nil
		}
		if !apperr.IsKind(err, apperr.KindConnection) {
			return err
		}
		slog.Warn("failed to ensure weaviate collection, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
