package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/audio-queue/internal/queue/models"
	"github.com/romariotrain/audio-queue/internal/queue/repository"
)

// MetadataFetcher resolves a video URL to its metadata. A nil result with a
// nil error means the upstream answered without a data payload.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, videoURL string) (*models.VideoMetadata, error)
}

// MediaDownloader returns the audio payload for a video URL.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, videoURL string) (io.ReadCloser, error)
}

// Sink delivers a finished payload to the user under the given file name and
// returns where it ended up.
type Sink interface {
	Deliver(ctx context.Context, name string, r io.Reader) (string, error)
}

type EventRecorder interface {
	Record(ctx context.Context, event models.DomainEvent) error
}

// Notifier wakes the queue processor.
type Notifier interface {
	Notify()
}

// An explicit port is accepted only when it is the scheme's default.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

var allowedHosts = map[string]struct{}{
	"www.youtube.com":   {},
	"music.youtube.com": {},
}

type Service struct {
	repo     repository.TaskRepository
	fetcher  MetadataFetcher
	notifier Notifier
	events   EventRecorder
	logger   zerolog.Logger
	clock    func() time.Time
	idGen    func() uuid.UUID

	eventTimeout time.Duration
}

func New(repo repository.TaskRepository, fetcher MetadataFetcher, notifier Notifier, events EventRecorder, logger zerolog.Logger) *Service {
	if events == nil {
		events = NewLogRecorder(logger)
	}
	return &Service{
		repo:     repo,
		fetcher:  fetcher,
		notifier: notifier,
		events:   events,
		logger:   logger.With().Str("component", "submission").Logger(),
		clock:    time.Now,
		idGen:    uuid.New,

		eventTimeout: DefaultEventTimeout,
	}
}

// ValidateURL accepts only absolute URLs on www.youtube.com or
// music.youtube.com and returns the trimmed input.
func ValidateURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", models.ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return "", models.ErrInvalidURL
	}
	defaultPort, ok := defaultPorts[strings.ToLower(u.Scheme)]
	if !ok {
		return "", fmt.Errorf("%w: scheme %q is not allowed", models.ErrInvalidURL, u.Scheme)
	}
	if _, ok := allowedHosts[strings.ToLower(u.Hostname())]; !ok {
		return "", fmt.Errorf("%w: host %q is not allowed", models.ErrInvalidURL, u.Host)
	}
	if port := u.Port(); port != "" && port != defaultPort {
		return "", fmt.Errorf("%w: port %s is not allowed", models.ErrInvalidURL, port)
	}
	return rawURL, nil
}

// Submit validates rawURL, resolves its metadata and queues a PENDING task.
// The processor is notified exactly once per queued task. Nothing is queued
// when an error is returned.
func (s *Service) Submit(ctx context.Context, rawURL string) (*models.Task, error) {
	videoURL, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	log := s.logger.With().Str("url", videoURL).Logger()

	meta, err := s.fetcher.FetchMetadata(ctx, videoURL)
	if err != nil {
		log.Error().Err(err).Msg("metadata fetch failed")
		return nil, fmt.Errorf("%w: %w", models.ErrMetadataFetch, err)
	}
	if meta == nil {
		log.Warn().Msg("metadata response has no data, nothing queued")
		return nil, models.ErrEmptyMetadata
	}

	now := s.clock()
	task, err := s.repo.Create(ctx, &models.Task{
		ID:            s.idGen(),
		Title:         meta.Title,
		VideoID:       meta.VideoID,
		VideoURL:      meta.VideoURL,
		LengthSeconds: meta.LengthSeconds,
		Thumbnail:     meta.PreviewURL(),
		Status:        models.PendingStatus,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return nil, fmt.Errorf("queue task: %w", err)
	}

	log.Info().
		Str("task_id", task.ID.String()).
		Int("index", task.Index).
		Str("title", task.Title).
		Msg("task queued")

	if err := recordEvent(ctx, s.events, s.eventTimeout, models.NewTaskQueued(*task)); err != nil {
		log.Warn().Err(err).Msg("failed to record task event")
	}

	s.notifier.Notify()

	return task, nil
}

// Tasks returns the current queue snapshot.
func (s *Service) Tasks(ctx context.Context) (repository.Snapshot, error) {
	return s.repo.Snapshot(ctx)
}

func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	if id == uuid.Nil {
		return nil, models.ErrInvalidArgument
	}
	return s.repo.GetByID(ctx, id)
}
