package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/romariotrain/audio-queue/internal/queue/models"
	"github.com/romariotrain/audio-queue/internal/queue/repository"
)

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	args := m.Called(ctx, task)
	if v := args.Get(0); v != nil {
		return v.(*models.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Transition(ctx context.Context, id uuid.UUID, to models.Status, detail string) (*models.Task, error) {
	args := m.Called(ctx, id, to, detail)
	if v := args.Get(0); v != nil {
		return v.(*models.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) NextPending(ctx context.Context) (*models.Task, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(*models.Task), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StoreMock) Snapshot(ctx context.Context) (repository.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(repository.Snapshot), args.Error(1)
}

type FetcherMock struct {
	mock.Mock
}

func (m *FetcherMock) FetchMetadata(ctx context.Context, videoURL string) (*models.VideoMetadata, error) {
	args := m.Called(ctx, videoURL)
	if v := args.Get(0); v != nil {
		return v.(*models.VideoMetadata), args.Error(1)
	}
	return nil, args.Error(1)
}

type DownloaderMock struct {
	mock.Mock
}

func (m *DownloaderMock) DownloadMedia(ctx context.Context, videoURL string) (io.ReadCloser, error) {
	args := m.Called(ctx, videoURL)
	if v := args.Get(0); v != nil {
		return v.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) Notify() {
	m.Called()
}

// memorySink keeps delivered payloads by file name.
type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
	err   error
}

func newMemorySink() *memorySink {
	return &memorySink{files: make(map[string][]byte)}
}

func (s *memorySink) Deliver(_ context.Context, name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = buf.Bytes()
	s.order = append(s.order, name)
	return "/downloads/" + name, nil
}

func (s *memorySink) delivered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// eventLog records status transitions per task.
type eventLog struct {
	mu     sync.Mutex
	events []models.DomainEvent
	err    error
}

func (l *eventLog) Record(_ context.Context, event models.DomainEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return l.err
}

func (l *eventLog) statuses(taskID uuid.UUID) []models.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []models.Status
	for _, ev := range l.events {
		switch e := ev.(type) {
		case *models.TaskQueued:
			if e.AggregateID() == taskID {
				out = append(out, models.PendingStatus)
			}
		case *models.TaskStatusChanged:
			if e.AggregateID() == taskID {
				out = append(out, e.To())
			}
		}
	}
	return out
}

var errNetwork = errors.New("connection reset by peer")

func audio(payload string) io.ReadCloser {
	return io.NopCloser(bytes.NewBufferString(payload))
}

// stalledRecorder never completes a write on its own; it gives up only when
// the caller's context does.
type stalledRecorder struct {
	calls atomic.Int32
}

func (r *stalledRecorder) Record(ctx context.Context, _ models.DomainEvent) error {
	r.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}
