// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/othala/internal/api"
	"github.com/starford/othala/internal/blockstore"
	"github.com/starford/othala/internal/docstore"
	"github.com/starford/othala/internal/ingest"
	"github.com/starford/othala/internal/ledger"
	"github.com/starford/othala/internal/mcpserver"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/oracle"
	"github.com/starford/othala/internal/similarity"
	"github.com/starford/othala/internal/sse"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("oracle_provider", cfg.Oracle.Provider),
		slog.String("similarity_provider", cfg.Similarity.Provider),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Open the ledger.
	led, err := ledger.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	// Content oracle and similarity index, unless injected.
	orc := app.oracle
	if orc == nil {
		orc, err = buildOracle(cfg, logger)
		if err != nil {
			return err
		}
	}
	sim := app.similarity
	if sim == nil {
		sim, err = buildSimilarity(cfg)
		if err != nil {
			return err
		}
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)

	// Build stores; mutations fan out to SSE subscribers.
	blocks := blockstore.NewStore(led, orc, logger, func(kind string, b *models.Block) {
		broker.PublishBlockEvent(kind, b.ID)
	})
	docs := docstore.NewStore(led, blocks, sim, logger, func(kind string, d *models.Document) {
		broker.PublishDocumentEvent(kind, d.ID)
	})

	apiRouter := api.NewRouter(blocks, docs, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Seed ingest: one blocking sync before serving, then the watcher.
	if cfg.Seeds.Path != "" {
		ingester := ingest.NewIngester(led, blocks, cfg.Seeds.Path, logger)
		if err := ingester.Sync(); err != nil {
			logger.Warn("Initial seed sync failed", slog.String("error", err.Error()))
		}
		g.Go(func() error {
			return ingester.Watch(gCtx)
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP starts the MCP server on stdio with the given options. Logs go to
// stderr because stdout carries the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	led, err := ledger.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer led.Close()

	orc := app.oracle
	if orc == nil {
		orc, err = buildOracle(cfg, logger)
		if err != nil {
			return err
		}
	}
	sim := app.similarity
	if sim == nil {
		sim, err = buildSimilarity(cfg)
		if err != nil {
			return err
		}
	}

	blocks := blockstore.NewStore(led, orc, logger, nil)
	docs := docstore.NewStore(led, blocks, sim, logger, nil)

	logger.Info("MCP server starting on stdio",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("oracle_provider", cfg.Oracle.Provider))

	return mcpserver.New(blocks, docs).ServeStdio()
}

// buildOracle constructs the content oracle named by the configuration.
func buildOracle(cfg *Config, logger *slog.Logger) (oracle.Oracle, error) {
	switch cfg.Oracle.Provider {
	case OracleOpenAI:
		client := oracle.NewOpenAIClient(cfg.Oracle.APIKey, cfg.Oracle.Model, cfg.Oracle.BaseURL)
		return oracle.NewLLM(client, logger, cfg.Oracle.Attempts), nil
	case OracleOllama:
		client := oracle.NewOllamaClient(cfg.Oracle.BaseURL, cfg.Oracle.Model)
		return oracle.NewLLM(client, logger, cfg.Oracle.Attempts), nil
	default:
		return nil, fmt.Errorf("oracle: unknown provider %q", cfg.Oracle.Provider)
	}
}

// buildSimilarity constructs the overlap index named by the configuration.
func buildSimilarity(cfg *Config) (similarity.Index, error) {
	switch cfg.Similarity.Provider {
	case SimilarityEmbedding:
		embedder := similarity.NewOpenAIEmbedder(cfg.Similarity.APIKey, cfg.Similarity.Model, cfg.Similarity.BaseURL)
		return similarity.NewEmbedding(embedder, cfg.Similarity.MaxDistance, cfg.Similarity.MaxResults), nil
	case SimilarityLexical:
		// Jaccard distance is 1 - similarity, so the distance knob maps
		// straight onto the lexical threshold.
		return similarity.NewLexical(1-cfg.Similarity.MaxDistance, cfg.Similarity.MaxResults), nil
	default:
		return nil, fmt.Errorf("similarity: unknown provider %q", cfg.Similarity.Provider)
	}
}
