package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/kafka"
	"github.com/romariotrain/audio-queue/internal/storage/postgres"
)

const eventTypeHeader = "event_type"

type Store interface {
	GetPending(ctx context.Context, limit int) ([]postgres.OutboxRecord, error)
	MarkProcessed(ctx context.Context, id int64) error
}

type EventPublisher interface {
	PublishBatch(ctx context.Context, messages []kafka.Message) error
}

// Publisher relays task events from the outbox table to kafka. Delivery is
// at-least-once: an event published but not marked is sent again next tick.
type Publisher struct {
	store     Store
	producer  EventPublisher
	interval  time.Duration
	batchSize int
	logger    zerolog.Logger
}

type PublisherConfig struct {
	Store     Store
	Producer  EventPublisher
	Interval  time.Duration
	BatchSize int
	Logger    zerolog.Logger
}

func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("outbox store is required")
	}
	if cfg.Producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got: %v", cfg.Interval)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got: %d", cfg.BatchSize)
	}

	return &Publisher{
		store:     cfg.Store,
		producer:  cfg.Producer,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger.With().Str("component", "outbox_publisher").Logger(),
	}, nil
}

// Start polls the outbox until ctx is canceled. A failed batch is logged and
// retried on the next tick.
func (p *Publisher) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info().
		Dur("interval", p.interval).
		Int("batch_size", p.batchSize).
		Msg("outbox publisher started")

	for {
		if _, err := p.publishBatch(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("failed to publish batch")
		}

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox publisher stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// publishBatch relays one batch in outbox order and returns how many events
// were published. It stops at the first publish failure so a task's events
// never overtake each other.
func (p *Publisher) publishBatch(ctx context.Context) (int, error) {
	records, err := p.store.GetPending(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("get pending records: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var published, marked int
	var errs []error
	for _, record := range records {
		eventLogger := p.logger.With().
			Str("event_id", record.EventID).
			Str("event_type", record.EventType).
			Str("task_id", record.AggregateID).
			Int64("outbox_id", record.ID).
			Logger()

		err := p.producer.PublishBatch(ctx, []kafka.Message{{
			Key:     record.AggregateID,
			Value:   record.Payload,
			Headers: map[string]string{eventTypeHeader: record.EventType},
		}})
		if err != nil {
			eventLogger.Error().Err(err).Msg("failed to publish event to kafka")
			errs = append(errs, fmt.Errorf("publish %s: %w", record.EventID, err))
			break
		}
		published++

		if err := p.store.MarkProcessed(ctx, record.ID); err != nil {
			eventLogger.Warn().Err(err).Msg("failed to mark event as processed")
			continue
		}
		marked++
	}

	p.logger.Info().
		Int("total", len(records)).
		Int("published", published).
		Int("marked", marked).
		Msg("batch processing completed")

	return published, errors.Join(errs...)
}
