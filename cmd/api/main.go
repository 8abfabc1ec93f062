package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmonster/booster-apply/internal/app"
	"github.com/mmonster/booster-apply/internal/auth"
	"github.com/mmonster/booster-apply/internal/infra"
	"github.com/mmonster/booster-apply/internal/provider"
	"github.com/mmonster/booster-apply/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Apply migrations
	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Connect to Redis
	cache, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer cache.Close()
	logger.Info("connected to redis")

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)

	// Router and wizard registry
	router, registry, err := app.NewRouter(app.RouterDeps{
		Pool:   pool,
		Cache:  cache,
		JWTMgr: jwtMgr,
		Logger: logger,
		Discord: provider.DiscordConfig{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURI:  cfg.DiscordRedirectURI,
		},
		Storage: provider.StorageConfig{
			ProjectURL: cfg.StorageProjectURL,
			APIKey:     cfg.StorageAPIKey,
		},
		AllowedOrigin: cfg.CORSAllowedOrigin,
	})
	if err != nil {
		return fmt.Errorf("assemble router: %w", err)
	}
	registry.StartSweeper(ctx)

	// Notification delivery runs in-process; the standalone outbox-notifier
	// binary covers deployments that scale it separately.
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()
	webhook := provider.NewWebhookClient(cfg.NotifyWebhookURL)
	notifier := infra.NewNotifierPoller(pool, repository.NewOutbox(), webhook, producer, cfg.KafkaTopic, logger)
	notifier.Start(ctx)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
