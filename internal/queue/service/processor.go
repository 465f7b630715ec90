package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/models"
	"github.com/romariotrain/audio-queue/internal/queue/repository"
)

// Processor drives queued tasks through PENDING -> PROGRESS -> SUCCESS|ERROR,
// one task at a time and in insertion order. It reads the live queue rather
// than a snapshot, so tasks queued while a pass is running are picked up by
// that same pass.
type Processor struct {
	repo       repository.TaskRepository
	downloader MediaDownloader
	sink       Sink
	events     EventRecorder
	logger     zerolog.Logger

	// mu is the single worker slot. Holding it is the only way to move a task
	// out of PENDING.
	mu   sync.Mutex
	wake chan struct{}

	eventTimeout time.Duration
}

func NewProcessor(repo repository.TaskRepository, downloader MediaDownloader, sink Sink, events EventRecorder, logger zerolog.Logger) *Processor {
	if events == nil {
		events = NewLogRecorder(logger)
	}
	return &Processor{
		repo:       repo,
		downloader: downloader,
		sink:       sink,
		events:     events,
		logger:     logger.With().Str("component", "processor").Logger(),
		wake:       make(chan struct{}, 1),

		eventTimeout: DefaultEventTimeout,
	}
}

// Notify asks Run for another pass. Notifications that arrive while one is
// already waiting are coalesced; the pass drains every pending task anyway.
func (p *Processor) Notify() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run processes the queue on start and on every notification until ctx is
// canceled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info().Msg("queue processor started")

	for {
		p.ProcessPending(ctx)

		select {
		case <-ctx.Done():
			p.logger.Info().Err(ctx.Err()).Msg("queue processor stopped")
			return ctx.Err()
		case <-p.wake:
		}
	}
}

// ProcessPending takes pending tasks one by one until none is left and
// returns how many it finished. A failed download only fails its own task.
func (p *Processor) ProcessPending(ctx context.Context) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	done := 0
	for ctx.Err() == nil {
		task, err := p.repo.NextPending(ctx)
		if errors.Is(err, models.ErrNotFound) {
			break
		}
		if err != nil {
			p.logger.Error().Err(err).Msg("failed to read queue")
			break
		}

		if err := p.processTask(ctx, task); err != nil {
			// The task could not be claimed; scanning again would spin on it.
			p.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to start task")
			break
		}
		done++
	}

	if done > 0 {
		p.logger.Debug().Int("processed", done).Msg("queue pass completed")
	}
	return done
}

func (p *Processor) processTask(ctx context.Context, task *models.Task) error {
	log := p.logger.With().
		Str("task_id", task.ID.String()).
		Int("index", task.Index).
		Logger()

	if err := p.transition(ctx, task, models.ProgressStatus, ""); err != nil {
		return err
	}
	log.Info().Str("url", task.VideoURL).Msg("download started")

	path, err := p.download(ctx, task)
	if err != nil {
		log.Error().Err(err).Msg("download failed")
		if err := p.transition(ctx, task, models.ErrorStatus, err.Error()); err != nil {
			log.Error().Err(err).Msg("failed to mark task as errored")
		}
		return nil
	}

	if err := p.transition(ctx, task, models.SuccessStatus, filepath.Base(path)); err != nil {
		log.Error().Err(err).Msg("failed to mark task as succeeded")
		return nil
	}
	log.Info().Str("path", path).Msg("audio delivered")
	return nil
}

func (p *Processor) download(ctx context.Context, task *models.Task) (string, error) {
	body, err := p.downloader.DownloadMedia(ctx, task.VideoURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrDownloadFailure, err)
	}
	defer body.Close()

	path, err := p.sink.Deliver(ctx, task.FileName(), body)
	if err != nil {
		return "", fmt.Errorf("%w: deliver %q: %w", models.ErrDownloadFailure, task.FileName(), err)
	}
	return path, nil
}

// transition survives cancellation of ctx so a task interrupted by shutdown
// still lands in a terminal state. detail is passed on to the store.
func (p *Processor) transition(ctx context.Context, task *models.Task, to models.Status, detail string) error {
	ctx = context.WithoutCancel(ctx)

	from := task.Status
	updated, err := p.repo.Transition(ctx, task.ID, to, detail)
	if err != nil {
		return fmt.Errorf("transition %s -> %s: %w", from, to, err)
	}
	*task = *updated

	event := models.NewTaskStatusChanged(task.ID, from, to, task.Error)
	if err := recordEvent(ctx, p.events, p.eventTimeout, event); err != nil {
		p.logger.Warn().Err(err).Str("task_id", task.ID.String()).Msg("failed to record task event")
	}
	return nil
}
