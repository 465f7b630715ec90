package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/audio-queue/internal/queue/models"
	"github.com/romariotrain/audio-queue/internal/queue/repository"
)

func songA() *models.VideoMetadata {
	return &models.VideoMetadata{
		Title:         "Song A",
		VideoID:       "abc123",
		VideoURL:      "https://www.youtube.com/watch?v=abc123",
		LengthSeconds: "185",
		Thumbnails:    []models.Thumbnail{{URL: "t.jpg", Width: 120, Height: 90}},
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{
		"https://www.youtube.com/watch?v=abc123",
		"https://music.youtube.com/watch?v=abc123",
		"  https://www.youtube.com/watch?v=abc123  ",
		"http://WWW.YOUTUBE.COM/watch?v=abc123",
		"https://www.youtube.com:443/watch?v=abc123",
		"http://music.youtube.com:80/watch?v=abc123",
		"HTTPS://Music.YouTube.com:443/watch?v=abc123",
	}
	for _, raw := range valid {
		t.Run("valid "+raw, func(t *testing.T) {
			_, err := ValidateURL(raw)
			require.NoError(t, err)
		})
	}

	invalid := []string{
		"",
		"   ",
		"not a url",
		"://missing-scheme",
		"www.youtube.com/watch?v=abc123",
		"https://example.com/video",
		"https://youtube.com/watch?v=abc123",
		"https://m.youtube.com/watch?v=abc123",
		"https://www.youtube.com.evil.io/watch?v=abc123",
		"https://www.youtube.com:8443/watch?v=abc123",
		"https://www.youtube.com:80/watch?v=abc123",
		"http://www.youtube.com:443/watch?v=abc123",
		"ftp://www.youtube.com/watch?v=abc123",
		"http://[::1",
	}
	for _, raw := range invalid {
		t.Run("invalid "+raw, func(t *testing.T) {
			_, err := ValidateURL(raw)
			require.ErrorIs(t, err, models.ErrInvalidURL)
		})
	}
}

func TestSubmit_InvalidURL_NoStateChange(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(repo, fetcher, notifier, nil, zerolog.Nop())

	// Invalid input should be rejected before any collaborator is touched.
	got, err := svc.Submit(ctx, "https://example.com/video")
	require.ErrorIs(t, err, models.ErrInvalidURL)
	require.Nil(t, got)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Tasks)
	fetcher.AssertNotCalled(t, "FetchMetadata", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "Notify")
}

func TestSubmit_QueuesPendingTask(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	events := &eventLog{}
	svc := New(repo, fetcher, notifier, events, zerolog.Nop())

	fixedID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fixedTime := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	svc.idGen = func() uuid.UUID { return fixedID }
	svc.clock = func() time.Time { return fixedTime }

	url := "https://www.youtube.com/watch?v=abc123"
	fetcher.On("FetchMetadata", mock.Anything, url).Return(songA(), nil).Once()
	notifier.On("Notify").Return().Once()

	got, err := svc.Submit(ctx, url)
	require.NoError(t, err)
	require.NotNil(t, got)

	require.Equal(t, fixedID, got.ID)
	require.Equal(t, 1, got.Index)
	require.Equal(t, models.PendingStatus, got.Status)
	require.Equal(t, "Song A", got.Title)
	require.Equal(t, "abc123", got.VideoID)
	require.Equal(t, "https://www.youtube.com/watch?v=abc123", got.VideoURL)
	require.Equal(t, "185", got.LengthSeconds)
	require.Equal(t, "t.jpg", got.Thumbnail)
	require.Equal(t, fixedTime, got.CreatedAt)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 1)
	assert.Equal(t, models.PendingStatus, snap.Tasks[0].Status)
	assert.Equal(t, []models.Status{models.PendingStatus}, events.statuses(fixedID))

	fetcher.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestSubmit_IndexIsPreviousLengthPlusOne(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(repo, fetcher, notifier, nil, zerolog.Nop())

	fetcher.On("FetchMetadata", mock.Anything, mock.Anything).Return(songA(), nil)
	notifier.On("Notify").Return()

	for want := 1; want <= 3; want++ {
		got, err := svc.Submit(ctx, "https://music.youtube.com/watch?v=abc123")
		require.NoError(t, err)
		assert.Equal(t, want, got.Index)
	}

	// One processor invocation per successful submission.
	notifier.AssertNumberOfCalls(t, "Notify", 3)
}

func TestSubmit_EmptyThumbnails(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(repo, fetcher, notifier, nil, zerolog.Nop())

	meta := songA()
	meta.Thumbnails = nil
	fetcher.On("FetchMetadata", mock.Anything, mock.Anything).Return(meta, nil).Once()
	notifier.On("Notify").Return().Once()

	got, err := svc.Submit(ctx, "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)
	assert.Equal(t, "", got.Thumbnail)
}

func TestSubmit_MetadataFetchError(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(repo, fetcher, notifier, nil, zerolog.Nop())

	fetcher.On("FetchMetadata", mock.Anything, mock.Anything).Return(nil, errNetwork).Once()

	got, err := svc.Submit(ctx, "https://www.youtube.com/watch?v=abc123")
	require.ErrorIs(t, err, models.ErrMetadataFetch)
	require.ErrorIs(t, err, errNetwork)
	require.Nil(t, got)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Tasks)
	notifier.AssertNotCalled(t, "Notify")
}

func TestSubmit_EmptyMetadata(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(repo, fetcher, notifier, nil, zerolog.Nop())

	fetcher.On("FetchMetadata", mock.Anything, mock.Anything).Return(nil, nil).Once()

	got, err := svc.Submit(ctx, "https://www.youtube.com/watch?v=abc123")
	require.ErrorIs(t, err, models.ErrEmptyMetadata)
	require.Nil(t, got)

	snap, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Tasks)
	notifier.AssertNotCalled(t, "Notify")
}

func TestSubmit_RepoErrorPropagated(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(st, fetcher, notifier, nil, zerolog.Nop())

	fetcher.On("FetchMetadata", mock.Anything, mock.Anything).Return(songA(), nil).Once()
	st.On("Create", mock.Anything, mock.Anything).Return(nil, models.ErrInvalidArgument).Once()

	got, err := svc.Submit(ctx, "https://www.youtube.com/watch?v=abc123")
	require.ErrorIs(t, err, models.ErrInvalidArgument)
	require.Nil(t, got)
	st.AssertExpectations(t)
	notifier.AssertNotCalled(t, "Notify")
}

func TestSubmit_EventFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	events := &eventLog{err: errors.New("outbox unavailable")}
	svc := New(repo, fetcher, notifier, events, zerolog.Nop())

	fetcher.On("FetchMetadata", mock.Anything, mock.Anything).Return(songA(), nil).Once()
	notifier.On("Notify").Return().Once()

	got, err := svc.Submit(ctx, "https://www.youtube.com/watch?v=abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	notifier.AssertExpectations(t)
}

func TestGetTask(t *testing.T) {
	ctx := context.Background()
	st := new(StoreMock)
	svc := New(st, new(FetcherMock), new(NotifierMock), nil, zerolog.Nop())

	got, err := svc.GetTask(ctx, uuid.Nil)
	require.ErrorIs(t, err, models.ErrInvalidArgument)
	require.Nil(t, got)
	st.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)

	id := uuid.New()
	want := &models.Task{ID: id, Status: models.PendingStatus}
	st.On("GetByID", mock.Anything, id).Return(want, nil).Once()

	got, err = svc.GetTask(ctx, id)
	require.NoError(t, err)
	require.Equal(t, want, got)
	st.AssertExpectations(t)
}

func TestSubmit_StalledEventStoreDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	fetcher := new(FetcherMock)
	notifier := new(NotifierMock)
	svc := New(repo, fetcher, notifier, &stalledRecorder{}, zerolog.Nop())
	svc.eventTimeout = 20 * time.Millisecond

	url := "https://www.youtube.com/watch?v=abc123"
	fetcher.On("FetchMetadata", mock.Anything, url).Return(songA(), nil).Once()
	notifier.On("Notify").Return().Once()

	type result struct {
		task *models.Task
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		task, err := svc.Submit(ctx, url)
		resCh <- result{task, err}
	}()

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		assert.Equal(t, models.PendingStatus, res.task.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("submit stalled on the event store")
	}
	notifier.AssertExpectations(t)
}
