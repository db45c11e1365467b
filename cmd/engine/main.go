// Package main is the entrypoint for the ResultHawk verification engine.
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

	"github.com/joho/godotenv"

	"github.com/obikwelu/resulthawk/internal/api"
	"github.com/obikwelu/resulthawk/internal/api/handler"
	"github.com/obikwelu/resulthawk/internal/billing"
	"github.com/obikwelu/resulthawk/internal/browser"
	"github.com/obikwelu/resulthawk/internal/cache"
	"github.com/obikwelu/resulthawk/internal/config"
	"github.com/obikwelu/resulthawk/internal/engine"
	"github.com/obikwelu/resulthawk/internal/store"
	"github.com/obikwelu/resulthawk/internal/wallet"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("engine failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — .env for local development, fail fast on invalid config
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env,
		"max_concurrent", cfg.Engine.MaxConcurrent, "pool_max", cfg.Browser.PoolMax)

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

	// 5. Create store and wallet client
	pgStore := store.NewPostgresStore(pool)
	walletClient := wallet.NewHTTPClient(cfg.Wallet)

	// 6. Warm up the browser pool
	browserPool := browser.NewPool(browser.NewChromeFactory(cfg.Browser), cfg.Browser)
	if err := browserPool.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize browser pool: %w", err)
	}
	defer browserPool.Cleanup()

	// 7. Start the dispatch engine
	compensator := billing.NewCompensator(redisCache, walletClient, pgStore, slog.Default())
	eng := engine.New(pgStore, redisCache, browserPool, compensator,
		cfg.Engine, cfg.Browser, slog.Default())
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	// 8. Start the ops HTTP server
	router := api.NewRouter(api.Dependencies{
		HealthHandler: handler.Health(pgStore, redisCache),
		StatusHandler: handler.Status(eng),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ops server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("ops server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining in-flight jobs...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ops server shutdown: %w", err)
	}

	// Deferred eng.Stop waits for in-flight jobs before the pool tears down.
	slog.Info("engine stopped gracefully")
	return nil
}
