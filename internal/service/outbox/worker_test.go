package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	sequence  []error
	published []domain.OutboxMessage
	callCount int
}

func (s *stubPublisher) Publish(event domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	err := s.err
	if len(s.sequence) > 0 {
		err = s.sequence[0]
		s.sequence = s.sequence[1:]
	}
	if err == nil {
		s.published = append(s.published, event)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

var _ domain.OutboxPublisher = (*stubPublisher)(nil)

func enqueue(t *testing.T, repo domain.OutboxRepository, id, eventType string) {
	t.Helper()
	_, err := repo.Enqueue(context.Background(), domain.OutboxMessage{
		ID:            id,
		AggregateType: "order",
		AggregateID:   "order-" + id,
		EventType:     eventType,
		Payload:       []byte(`{"status":"pending"}`),
	})
	require.NoError(t, err)
}

func pendingCount(t *testing.T, repo domain.OutboxRepository) int {
	t.Helper()
	stats, err := repo.Stats(context.Background())
	require.NoError(t, err)
	return stats.PendingCount
}

func TestWorker_ProcessOnce_MarksSentInOrder(t *testing.T) {
	repo := memory.NewStore().Outbox()
	enqueue(t, repo, "m1", "order.created")
	enqueue(t, repo, "m2", "order.status_changed")
	publisher := &stubPublisher{}

	worker := outbox.NewWorker(repo, publisher,
		outbox.WithRetryBaseDelay(0),
		outbox.WithMetrics(metrics.NewOutboxMetrics(prometheus.NewRegistry())),
	)

	assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
	require.Len(t, publisher.published, 2)
	assert.Equal(t, "m1", publisher.published[0].ID)
	assert.Equal(t, "m2", publisher.published[1].ID)
	assert.Zero(t, pendingCount(t, repo))

	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 2, publisher.calls())
}

func TestWorker_ProcessOnce_DeadLettersAfterRetries(t *testing.T) {
	repo := memory.NewStore().Outbox()
	enqueue(t, repo, "m1", "payment.received")
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{}
	failedAt := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	worker := outbox.NewWorker(repo, publisher,
		outbox.WithDLQPublisher(dlq),
		outbox.WithRetryBaseDelay(0),
		outbox.WithMaxAttempts(3),
		outbox.WithClock(func() time.Time { return failedAt }),
	)

	assert.Zero(t, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Zero(t, pendingCount(t, repo))

	require.Len(t, dlq.published, 1)
	var letter outbox.DeadLetter
	require.NoError(t, json.Unmarshal(dlq.published[0].Payload, &letter))
	assert.Equal(t, "m1", letter.OutboxID)
	assert.Equal(t, "payment.received", letter.EventType)
	assert.JSONEq(t, `{"status":"pending"}`, string(letter.Payload))
	assert.Contains(t, letter.PublishError, "broker down")
	assert.True(t, failedAt.Equal(letter.FailedAt))
}

func TestWorker_ProcessOnce_SucceedsAfterRetry(t *testing.T) {
	repo := memory.NewStore().Outbox()
	enqueue(t, repo, "m1", "order.created")
	publisher := &stubPublisher{sequence: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	worker := outbox.NewWorker(repo, publisher, outbox.WithRetryBaseDelay(0), outbox.WithMaxAttempts(3))

	assert.Equal(t, 1, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 3, publisher.calls())
	assert.Zero(t, pendingCount(t, repo))
}

func TestWorker_ProcessOnce_RespectsBatchSize(t *testing.T) {
	repo := memory.NewStore().Outbox()
	for _, id := range []string{"m1", "m2", "m3"} {
		enqueue(t, repo, id, "order.created")
	}
	worker := outbox.NewWorker(repo, &stubPublisher{}, outbox.WithBatchSize(2))

	assert.Equal(t, 2, worker.ProcessOnce(context.Background()))
	assert.Equal(t, 1, pendingCount(t, repo))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	repo := memory.NewStore().Outbox()
	worker := outbox.NewWorker(repo, &stubPublisher{}, outbox.WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}
