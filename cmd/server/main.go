// Package main is the entrypoint for the VidHive API server.
package main

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

	"github.com/vidhive/vidhive/internal/api"
	"github.com/vidhive/vidhive/internal/api/handler"
	mw "github.com/vidhive/vidhive/internal/api/middleware"
	"github.com/vidhive/vidhive/internal/api/response"
	"github.com/vidhive/vidhive/internal/cache"
	"github.com/vidhive/vidhive/internal/classify"
	"github.com/vidhive/vidhive/internal/config"
	"github.com/vidhive/vidhive/internal/feed"
	"github.com/vidhive/vidhive/internal/runner"
	"github.com/vidhive/vidhive/internal/storage"
	"github.com/vidhive/vidhive/internal/store"
	"github.com/vidhive/vidhive/internal/upload"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast when invalid
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"storage_backend", cfg.Storage.Backend,
		"classifier", cfg.Classifier.Provider,
		"env", cfg.Server.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create change feed
	changeFeed, err := feed.NewRedisFeed(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create change feed: %w", err)
	}
	defer changeFeed.Close()

	// 6. Create storage gateway
	gateway, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("create storage gateway: %w", err)
	}
	if err := gateway.Ping(ctx); err != nil {
		return fmt.Errorf("ping storage: %w", err)
	}
	slog.Info("storage gateway ready", "backend", cfg.Storage.Backend)

	// 7. Create classifier
	classifier, err := classify.NewClassifier(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}
	slog.Info("classifier initialized", "provider", classifier.Name())

	// 8. Create store, runner, and upload coordinator
	pgStore := store.NewPostgresStore(pool)
	jobRunner := runner.New(pgStore, changeFeed, gateway, classifier, cfg.Processing)
	coordinator := upload.NewCoordinator(pgStore, gateway, changeFeed, jobRunner, cfg.Upload)

	// 9. Build router with dependencies
	auth := mw.NewAuth(pgStore)
	rateLimit := mw.NewRateLimit(redisCache, 60)

	deps := api.Dependencies{
		Auth:      auth,
		RateLimit: rateLimit,

		HealthHandler: healthHandler(pgStore, redisCache, gateway),

		UploadHandler:      handler.NewUploadHandler(coordinator, cfg.Upload.MaxBytes),
		ListVideosHandler:  handler.NewListVideosHandler(pgStore),
		GetVideoHandler:    handler.NewGetVideoHandler(pgStore),
		UpdateVideoHandler: handler.NewUpdateVideoHandler(pgStore, changeFeed),
		DeleteVideoHandler: handler.NewDeleteVideoHandler(pgStore, gateway, changeFeed),
		StreamHandler:      handler.NewStreamHandler(pgStore, gateway, redisCache),
		EventsHandler:      handler.NewEventsHandler(changeFeed),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 10. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // uploads and SSE streams manage their own lifetimes
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let in-flight processing jobs finish their current writes.
	jobRunner.Wait()

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database, cache, and storage connectivity.
func healthHandler(s store.Store, c cache.Cache, gw storage.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"storage":  "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := gw.Ping(r.Context()); err != nil {
			checks["storage"] = "degraded"
		}

		for _, state := range checks {
			if state != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
