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

	"github.com/starford/laguz/internal/api"
	"github.com/starford/laguz/internal/docstore"
	"github.com/starford/laguz/internal/ingest"
	"github.com/starford/laguz/internal/pipeline"
	"github.com/starford/laguz/internal/provider"
	"github.com/starford/laguz/internal/records"
	"github.com/starford/laguz/internal/sse"
	"github.com/starford/laguz/internal/storage"
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
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("records_path", cfg.SQLite.RecordsPath),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure vault directory exists.
	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}

	// Vault storage.
	vault, err := storage.NewFS(cfg.Vault.Path, cfg.Vault.IgnoreDirs...)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	// File record store.
	store, err := records.Open(cfg.SQLite.RecordsPath)
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer store.Close()

	// Dual store for documents and chunks.
	docs, err := docstore.Open(cfg.SQLite.DocumentsPath)
	if err != nil {
		return fmt.Errorf("init document store: %w", err)
	}
	defer docs.Close()

	// Requeue records a previous run left mid-claim.
	if n, err := store.ResetStale(); err != nil {
		logger.Warn("startup recovery failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("requeued stale records", slog.Int("count", n))
	}

	// AI providers (overridable via options).
	embedder, describer := app.embedder, app.describer
	if embedder == nil || describer == nil {
		p, err := provider.NewOpenAI(provider.OpenAIConfig{
			BaseURL:        cfg.Provider.BaseURL,
			Token:          cfg.Provider.Token,
			EmbeddingModel: cfg.Provider.EmbeddingModel,
			VisionModel:    cfg.Provider.VisionModel,
			CallTimeout:    time.Duration(cfg.Provider.CallTimeoutSec) * time.Second,
		}, logger)
		if err != nil {
			return fmt.Errorf("init provider: %w", err)
		}
		if embedder == nil {
			embedder = p
		}
		if describer == nil {
			describer = p
		}
	}

	// SSE broker for ingest lifecycle events.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	events := broker.PublishFileEvent

	// Ingest components, dependency-injected; no process-wide globals.
	pipe := pipeline.New(vault, docs, embedder, describer, pipeline.Config{
		ChunkSize:    cfg.Pipeline.ChunkSize,
		ChunkOverlap: cfg.Pipeline.ChunkOverlap,
		MaxPageChars: cfg.Pipeline.MaxPageChars,
	}, logger)
	syncer := ingest.NewSyncer(store, vault, docs, ingest.DeletePolicy(cfg.Pipeline.OnDelete), logger, events)
	orch := ingest.NewOrchestrator(store, vault, pipe, syncer, logger, events)
	worker := ingest.NewWorker(syncer, orch, store, cfg.Worker.ToIngest(), logger)

	// Run initial reconciliation.
	if _, err := syncer.Scan(ctx, "", false); err != nil {
		logger.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	// Build API service and router.
	svc := api.NewService(syncer, orch, worker, store)
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, http.HandlerFunc(broker.ServeHTTP))

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

	// Signals cancel the group context so the worker and watcher observe
	// the stop between cycles.
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)

	// Start background worker loop.
	g.Go(func() error {
		return worker.Run(gCtx)
	})

	// Start file watcher (best-effort; scan remains the source of truth).
	if cfg.Watcher.Enabled {
		g.Go(func() error {
			watcher := ingest.NewWatcher(syncer, vault, cfg.Watcher.Debounce(), logger)
			if err := watcher.Run(gCtx); err != nil {
				logger.Warn("watcher exited", slog.String("error", err.Error()))
			}
			return nil
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

	// Handle shutdown.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

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
