package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmonster/booster-apply/internal/infra"
	"github.com/mmonster/booster-apply/internal/provider"
	"github.com/mmonster/booster-apply/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox notifier failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.NotifyWebhookURL == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is required")
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-notifier connected to postgres")

	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	defer producer.Close()

	webhook := provider.NewWebhookClient(cfg.NotifyWebhookURL)
	notifier := infra.NewNotifierPoller(pool, repository.NewOutbox(), webhook, producer, cfg.KafkaTopic, logger)
	notifier.Start(ctx)

	<-ctx.Done()
	logger.Info("outbox-notifier shutting down")
	return nil
}
