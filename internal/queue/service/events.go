package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/models"
)

// DefaultEventTimeout bounds a single Record call. Events are recorded while
// the processor holds its worker slot, so a stalled event store must not
// stall the queue with it.
const DefaultEventTimeout = 5 * time.Second

// recordEvent detaches the write from ctx cancellation, so events of a task
// interrupted by shutdown are still recorded, but caps it at timeout.
func recordEvent(ctx context.Context, events EventRecorder, timeout time.Duration, event models.DomainEvent) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return events.Record(ctx, event)
}

// LogRecorder is the event recorder used when no event store is configured.
type LogRecorder struct {
	logger zerolog.Logger
}

func NewLogRecorder(logger zerolog.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.With().Str("component", "events").Logger()}
}

func (r *LogRecorder) Record(_ context.Context, event models.DomainEvent) error {
	r.logger.Debug().
		Str("event_id", event.EventID().String()).
		Str("event_type", event.EventType()).
		Str("task_id", event.AggregateID().String()).
		Msg("task event")
	return nil
}
