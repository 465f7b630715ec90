package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romariotrain/audio-queue/internal/queue/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	written  []kafkago.Message
	closeErr error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.calls++
	if len(w.errs) > 0 {
		err := w.errs[0]
		w.errs = w.errs[1:]
		if err != nil {
			return err
		}
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return w.closeErr }

func testConfig() ProducerConfig {
	cfg := ProducerConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "audio-queue.task-status",
		RetryBackoff: time.Millisecond,
		Logger:       zerolog.Nop(),
	}
	setDefaults(&cfg)
	return cfg
}

func TestNewProducer_Defaults(t *testing.T) {
	producer, err := NewProducer(ProducerConfig{
		Brokers: []string{"localhost:9092"},
		Topic:   "audio-queue.task-status",
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	assert.Equal(t, "audio-queue.task-status", producer.config.Topic)
	assert.Equal(t, 3, producer.config.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, producer.config.RetryBackoff)
	assert.Equal(t, 10*time.Second, producer.config.WriteTimeout)
	assert.Equal(t, 100, producer.config.BatchSize)
	assert.False(t, producer.config.Async)
}

func TestNewProducer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  ProducerConfig
		wantErr string
	}{
		{"empty brokers", ProducerConfig{Topic: "t"}, "brokers list is empty"},
		{"empty topic", ProducerConfig{Brokers: []string{"localhost:9092"}}, "topic is empty"},
		{"negative max retries", ProducerConfig{Brokers: []string{"b"}, Topic: "t", MaxRetries: -1}, "max_retries cannot be negative"},
		{"negative retry backoff", ProducerConfig{Brokers: []string{"b"}, Topic: "t", RetryBackoff: -time.Second}, "retry_backoff cannot be negative"},
		{"negative write timeout", ProducerConfig{Brokers: []string{"b"}, Topic: "t", WriteTimeout: -time.Second}, "write_timeout cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer, err := NewProducer(tt.config)

			require.Error(t, err)
			assert.Nil(t, producer)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSetDefaults_DoesNotOverrideExisting(t *testing.T) {
	cfg := ProducerConfig{
		MaxRetries:   5,
		RetryBackoff: 200 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
		BatchSize:    50,
	}
	setDefaults(&cfg)

	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retriable bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"i/o timeout", errors.New("i/o timeout"), true},
		{"leader not available", kafkago.LeaderNotAvailable, true},
		{"message too large", kafkago.MessageSizeTooLarge, false},
		{"invalid message text", errors.New("invalid message format"), false},
		{"authorization failed", errors.New("authorization failed"), false},
		{"unknown error", errors.New("some random error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retriable, isRetriableError(tt.err))
		})
	}
}

func TestPublish_Success(t *testing.T) {
	w := &fakeWriter{}
	producer := newProducer(w, testConfig())

	require.NoError(t, producer.Publish(context.Background(), "task-1", []byte(`{"to":"SUCCESS"}`)))

	require.Len(t, w.written, 1)
	assert.Equal(t, "task-1", string(w.written[0].Key))
	assert.Equal(t, int64(1), producer.GetMetrics().MessagesPublished)
}

func TestPublish_RetriesTransientErrors(t *testing.T) {
	w := &fakeWriter{errs: []error{errors.New("connection reset by peer"), errors.New("i/o timeout"), nil}}
	producer := newProducer(w, testConfig())

	require.NoError(t, producer.Publish(context.Background(), "k", []byte("v")))

	m := producer.GetMetrics()
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, int64(2), m.RetriesTotal)
	assert.Equal(t, int64(1), m.MessagesPublished)
	assert.Equal(t, int64(0), m.MessagesFailed)
}

func TestPublish_GivesUpAfterMaxRetries(t *testing.T) {
	transient := errors.New("connection refused")
	w := &fakeWriter{errs: []error{transient, transient, transient, transient, transient}}
	producer := newProducer(w, testConfig())

	err := producer.Publish(context.Background(), "k", []byte("v"))
	require.ErrorIs(t, err, transient)

	assert.Equal(t, 4, w.calls)
	assert.Equal(t, int64(1), producer.GetMetrics().MessagesFailed)
}

func TestPublish_PermanentErrorIsNotRetried(t *testing.T) {
	w := &fakeWriter{errs: []error{kafkago.MessageSizeTooLarge}}
	producer := newProducer(w, testConfig())

	err := producer.Publish(context.Background(), "k", []byte("v"))
	require.ErrorIs(t, err, kafkago.MessageSizeTooLarge)
	assert.Equal(t, 1, w.calls)
	assert.Equal(t, int64(0), producer.GetMetrics().RetriesTotal)
}

func TestPublish_CanceledDuringBackoff(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = time.Hour
	w := &fakeWriter{errs: []error{errors.New("connection refused")}}
	producer := newProducer(w, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := producer.Publish(ctx, "k", []byte("v"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRecord_PublishesEventKeyedByTask(t *testing.T) {
	w := &fakeWriter{}
	producer := newProducer(w, testConfig())

	taskID := uuid.New()
	event := models.NewTaskStatusChanged(taskID, models.ProgressStatus, models.ErrorStatus, "upstream returned 500")
	require.NoError(t, producer.Record(context.Background(), event))

	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, taskID.String(), string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, eventTypeHeader, msg.Headers[0].Key)
	assert.Equal(t, "TaskStatusChanged", string(msg.Headers[0].Value))

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "PROGRESS", body["from"])
	assert.Equal(t, "ERROR", body["to"])
	assert.Equal(t, "upstream returned 500", body["reason"])
}

func TestPublishBatch_EmptyMessages(t *testing.T) {
	w := &fakeWriter{}
	producer := newProducer(w, testConfig())

	require.NoError(t, producer.PublishBatch(context.Background(), nil))
	assert.Equal(t, 0, w.calls)
}

func TestGetMetrics_AvgPublishTime(t *testing.T) {
	producer := newProducer(&fakeWriter{}, testConfig())

	producer.metrics.PublishDuration.Add(int64(100 * time.Millisecond))
	assert.Equal(t, time.Duration(0), producer.GetMetrics().AvgPublishTime)

	producer.metrics.MessagesPublished.Add(10)
	assert.Equal(t, 10*time.Millisecond, producer.GetMetrics().AvgPublishTime)
}

func TestClose(t *testing.T) {
	producer := newProducer(&fakeWriter{}, testConfig())

	require.NoError(t, producer.Close())
	assert.True(t, producer.closed.Load())

	err := producer.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already closed")

	err = producer.Publish(context.Background(), "k", []byte("v"))
	assert.ErrorContains(t, err, "producer is closed")

	err = producer.HealthCheck(context.Background())
	assert.ErrorContains(t, err, "producer is closed")
}
