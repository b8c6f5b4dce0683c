package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ragdocs/features/ingest"
	"ragdocs/features/search"
	"ragdocs/features/source"
	"ragdocs/features/stats"
	"ragdocs/internal/config"
	"ragdocs/internal/middleware"
	"ragdocs/internal/retrieval"
	"ragdocs/internal/worker"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	Handler http.Handler
	Ingest  *ingest.Service
	Sources *source.Service
	Search  *retrieval.Service
	Worker  *worker.Worker

	port   int
	logger *slog.Logger
}

func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}

	// Feature: Ingest
	ingestService := ingest.NewService(deps.Queue, deps.Worker, logger)
	ingestHandler := ingest.NewHandler(ingestService)

	// Feature: Source
	sourceService := source.NewService(deps.VectorStore, deps.Extractor, ingestService, logger)
	sourceHandler := source.NewHandler(sourceService)

	// Feature: Search
	searchService := retrieval.NewService(deps.Embedder, deps.VectorStore, retrieval.Config{
		TopK:          cfg.SearchTopK,
		SnippetLength: cfg.SnippetLength,
	}, deps.QueryLog, logger)
	searchHandler := search.NewHandler(searchService)

	// Feature: Stats
	statsHandler := stats.NewHandler(deps.Queue, deps.VectorStore)

	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.CORS(h))
	}

	mux := http.NewServeMux()

	mux.Handle("GET /documents", route(sourceHandler.List))
	mux.Handle("DELETE /documents", route(sourceHandler.Remove))
	mux.Handle("DELETE /documents/all", route(sourceHandler.RemoveAll))
	mux.Handle("POST /extract-urls", route(sourceHandler.ExtractURLs))

	mux.Handle("GET /queue", route(ingestHandler.List))
	mux.Handle("POST /add-doc", route(ingestHandler.Add))
	mux.Handle("POST /clear-queue", route(ingestHandler.Clear))
	mux.Handle("POST /process-queue", route(ingestHandler.Process))
	mux.Handle("POST /retry-failed", route(ingestHandler.RetryFailed))

	mux.Handle("POST /search", route(searchHandler.Search))
	mux.Handle("GET /stats", route(statsHandler.GetStats))

	// Preflight for every route.
	mux.Handle("OPTIONS /", route(func(w http.ResponseWriter, r *http.Request) {}))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})

	return &App{
		Handler: mux,
		Ingest:  ingestService,
		Sources: sourceService,
		Search:  searchService,
		Worker:  deps.Worker,
		port:    cfg.ServerPort,
		logger:  logger,
	}
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.port),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "port", a.port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
