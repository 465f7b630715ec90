package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/app"
	"github.com/romariotrain/audio-queue/internal/config"
	"github.com/romariotrain/audio-queue/internal/logging"
	"github.com/romariotrain/audio-queue/internal/queue/kafka"
	"github.com/romariotrain/audio-queue/internal/queue/outbox"
	"github.com/romariotrain/audio-queue/internal/storage/postgres"
)

// publish relays task events from the postgres outbox to kafka. It is the
// out-of-process alternative to the relay embedded in audioqueue.
func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger = logging.Service(logger, "publish")

	code := app.Run(logger, "publish", func(ctx context.Context) error {
		return relay(ctx, cfg, logger)
	})
	os.Exit(code)
}

func relay(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	repo := postgres.NewOutboxRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaTopic,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	if err := producer.HealthCheck(ctx); err != nil {
		logger.Warn().Err(err).Msg("kafka not reachable yet, relay will keep retrying")
	}

	publisher, err := outbox.NewPublisher(outbox.PublisherConfig{
		Store:     repo,
		Producer:  producer,
		Interval:  cfg.OutboxInterval,
		BatchSize: cfg.OutboxBatchSize,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if err := publisher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
