package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	seq        int64
	createdAt  time.Time
}

type outboxRepository struct {
	v *view
}

// Enqueue сохраняет событие со статусом `pending`. Внутри транзакции
// событие становится видимым воркеру только после фиксации.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	err := r.v.write(func(st *state) error {
		st.outboxSeq++
		st.outbox[msg.ID] = outboxRecord{
			msg:       msg,
			status:    outboxPending,
			seq:       st.outboxSeq,
			createdAt: nowUTC(),
		}
		return nil
	})
	return msg, err
}

// PullPending возвращает до limit сообщений `pending` в порядке постановки.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var pending []outboxRecord
	err := r.v.read(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.status == outboxPending {
				pending = append(pending, rec)
			}
		}
		return nil
	})
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range pending {
		if len(result) >= limit {
			break
		}
		result = append(result, rec.msg)
	}
	return result, err
}

func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.v.read(func(st *state) error {
		for _, rec := range st.outbox {
			if rec.status != outboxPending {
				continue
			}
			stats.PendingCount++
			created := rec.createdAt
			if stats.OldestPendingAt.IsZero() || created.Before(stats.OldestPendingAt) {
				stats.OldestPendingAt = created
			}
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, outboxSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, outboxFailed)
}

func (r *outboxRepository) mark(id, status string) error {
	return r.v.write(func(st *state) error {
		rec, ok := st.outbox[id]
		if !ok {
			return domain.ErrOutboxPublish
		}
		rec.status = status
		rec.attemptCnt++
		st.outbox[id] = rec
		return nil
	})
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
