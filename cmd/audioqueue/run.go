package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/config"
	"github.com/romariotrain/audio-queue/internal/delivery"
	"github.com/romariotrain/audio-queue/internal/queue/httpapi"
	"github.com/romariotrain/audio-queue/internal/queue/kafka"
	"github.com/romariotrain/audio-queue/internal/queue/outbox"
	"github.com/romariotrain/audio-queue/internal/queue/repository"
	"github.com/romariotrain/audio-queue/internal/queue/service"
	"github.com/romariotrain/audio-queue/internal/storage/postgres"
	"github.com/romariotrain/audio-queue/internal/upstream"
	"github.com/romariotrain/audio-queue/internal/youtube"
)

const (
	pingTimeout     = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

type backend interface {
	service.MetadataFetcher
	service.MediaDownloader
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	media, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sink, err := delivery.NewFileSink(cfg.DownloadDir, logger)
	if err != nil {
		return err
	}

	events, err := newEventPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer events.close()

	// Dependencies
	repo := repository.NewMemoryRepository()
	proc := service.NewProcessor(repo, media, sink, events.recorder, logger)
	svc := service.New(repo, media, proc, events.recorder, logger)
	h := httpapi.New(svc, logger)
	router := httpapi.NewRouter(h, httpapi.RouterConfig{
		DownloadDir:    cfg.DownloadDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = proc.Run(workerCtx)
	}()
	if events.relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = events.relay.Start(workerCtx)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.HTTPAddr).
			Str("backend", cfg.Backend).
			Str("download_dir", sink.Dir()).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		stopWorkers()
		wg.Wait()
		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil

	case err := <-errCh:
		stopWorkers()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	}
}

func newBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (backend, error) {
	if cfg.Backend == config.BackendDirect {
		return youtube.NewBackend(logger), nil
	}

	client, err := upstream.NewClient(upstream.Config{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.UpstreamTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	// Wakes the conversion service up before the first real request.
	go func() {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx); err != nil {
			logger.Warn().Err(err).Msg("upstream ping failed")
			return
		}
		logger.Info().Msg("upstream reachable")
	}()

	return client, nil
}

type eventPipeline struct {
	recorder service.EventRecorder
	relay    *outbox.Publisher
	closers  []func() error
}

// newEventPipeline picks where task events go: the postgres outbox (relayed
// to kafka in-process when brokers are configured), kafka directly, or only
// the log.
func newEventPipeline(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*eventPipeline, error) {
	p := &eventPipeline{}

	var producer *kafka.Producer
	if cfg.KafkaEnabled() {
		var err error
		producer, err = kafka.NewProducer(kafka.ProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		p.closers = append(p.closers, producer.Close)
	}

	if !cfg.OutboxEnabled() {
		if producer != nil {
			p.recorder = producer
			logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("task events go to kafka")
		}
		return p, nil
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		p.close()
		return nil, fmt.Errorf("db connect: %w", err)
	}
	p.closers = append(p.closers, db.Close)

	repo := postgres.NewOutboxRepo(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		p.close()
		return nil, err
	}
	p.recorder = repo
	logger.Info().Msg("task events go to the postgres outbox")

	if producer != nil {
		p.relay, err = outbox.NewPublisher(outbox.PublisherConfig{
			Store:     repo,
			Producer:  producer,
			Interval:  cfg.OutboxInterval,
			BatchSize: cfg.OutboxBatchSize,
			Logger:    logger,
		})
		if err != nil {
			p.close()
			return nil, err
		}
	}
	return p, nil
}

// close releases resources in reverse order of acquisition.
func (p *eventPipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		_ = p.closers[i]()
	}
}
