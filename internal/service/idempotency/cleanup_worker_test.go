package idempotency_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

type failingRepo struct {
	domain.IdempotencyRepository
	err error
}

func (r failingRepo) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, r.err
}

func seedExpired(t *testing.T, repo domain.IdempotencyRepository, n int, ttl time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		key := "key-" + string(rune('a'+i))
		_, err := repo.CreateProcessing(context.Background(), key, "hash", ttl)
		require.NoError(t, err)
	}
}

func TestCleanupWorker_DeleteExpired_InBatches(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	seedExpired(t, repo, 5, now.Add(-time.Minute))
	_, err := repo.CreateProcessing(context.Background(), "fresh", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	worker := idempotency.NewCleanupWorker(repo,
		idempotency.WithBatchSize(2),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(prometheus.NewRegistry())),
	)

	deleted, err := worker.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 5, deleted)

	_, err = repo.Get(context.Background(), "fresh")
	assert.NoError(t, err)
	_, err = repo.Get(context.Background(), "key-a")
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}

func TestCleanupWorker_DeleteExpired_Error(t *testing.T) {
	boom := errors.New("boom")
	worker := idempotency.NewCleanupWorker(failingRepo{err: boom})

	deleted, err := worker.DeleteExpired(context.Background(), time.Now())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, deleted)
}

func TestCleanupWorker_DeleteExpired_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	worker := idempotency.NewCleanupWorker(memory.NewIdempotencyRepository())
	_, err := worker.DeleteExpired(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	worker := idempotency.NewCleanupWorker(memory.NewIdempotencyRepository(), idempotency.WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup worker did not stop on context cancel")
	}
}
