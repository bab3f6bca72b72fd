package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/inventory"
)

// Типы событий outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventPaymentReceived    = "payment.received"
)

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 10 * time.Millisecond
	resolveConcurrency    = 8
)

// Service оформляет заказы и ведёт их по жизненному циклу.
type Service struct {
	uow      domain.UnitOfWork
	adjuster *inventory.Adjuster
	logger   *log.Entry
	metrics  *metrics.MarketplaceMetrics
	now      func() time.Time

	maxRetries     int
	retryBaseDelay time.Duration
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.MarketplaceMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAdjuster подменяет Adjuster остатков.
func WithAdjuster(adjuster *inventory.Adjuster) Option {
	return func(s *Service) {
		if adjuster != nil {
			s.adjuster = adjuster
		}
	}
}

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetry задаёт число попыток при конфликте версий.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxRetries > 0 {
			s.maxRetries = maxRetries
		}
		if baseDelay >= 0 {
			s.retryBaseDelay = baseDelay
		}
	}
}

// NewService создаёт сервис заказов поверх единицы работы.
func NewService(uow domain.UnitOfWork, options ...Option) *Service {
	s := &Service{
		uow:            uow,
		logger:         log.WithField("component", "orders"),
		now:            func() time.Time { return time.Now().UTC() },
		maxRetries:     defaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(s)
	}
	if s.adjuster == nil {
		s.adjuster = inventory.NewAdjuster(inventory.WithLogger(s.logger), inventory.WithMetrics(s.metrics))
	}
	return s
}

// withRetry повторяет транзакцию при конфликте версий с exponential backoff.
func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	var err error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err = s.uow.WithinTx(ctx, fn)
		if !domain.IsVersionConflict(err) {
			return err
		}

		s.logger.WithFields(log.Fields{
			"attempt": attempt + 1,
		}).Warn("version conflict detected, retrying")

		delay := s.retryBaseDelay * time.Duration(1<<uint(attempt))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// emit пишет событие в outbox и в timeline в рамках транзакции tx.
func (s *Service) emit(
	ctx context.Context,
	tx domain.Repositories,
	order domain.Order,
	eventType string,
	timeline domain.TimelineEvent,
	payload map[string]interface{},
) error {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = order.ID
	payload["buyer_id"] = order.BuyerID
	payload["seller_id"] = order.SellerID
	payload["status"] = order.Status
	payload["ts"] = order.UpdatedAt.Format(time.RFC3339Nano)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := tx.Outbox().Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	s.metrics.RecordOutboxEvent()

	timeline.OrderID = order.ID
	if timeline.Occurred.IsZero() {
		timeline.Occurred = order.UpdatedAt
	}
	if err := tx.Timeline().Append(ctx, timeline); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	s.metrics.RecordTimelineEvent()
	return nil
}
