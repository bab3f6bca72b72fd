package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment/zalopay"
)

// Коды ответа на уведомление шлюза.
const (
	ReturnCodeSuccess     = 1
	ReturnCodeFailed      = 0
	ReturnCodeMACMismatch = -1
)

// Gateway — исходящая сторона платёжного шлюза.
type Gateway interface {
	NewOrder(amount int64, paymentMethod string) zalopay.Order
	CreateOrder(ctx context.Context, order zalopay.Order) (json.RawMessage, error)
	VerifyCallback(data, signature string) bool
}

// OrderTransitioner применяет событие жизненного цикла внутри транзакции.
type OrderTransitioner interface {
	Transition(
		ctx context.Context,
		tx domain.Repositories,
		orderID string,
		event domain.OrderEvent,
		requested domain.OrderStatus,
		input domain.TransitionInput,
	) (orders.TransitionResult, error)
}

// CreatePaymentRequest — запрос на онлайн-оплату заказа.
type CreatePaymentRequest struct {
	OrderID       string               `json:"orderId"`
	Amount        Amount               `json:"amount"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
}

// Amount — сумма в минимальных единицах; в JSON допускается число или строка.
type Amount int64

// UnmarshalJSON принимает 150000 и "150000".
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if raw == "" || raw == "null" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw, domain.ErrInvalidArgument)
	}
	*a = Amount(v)
	return nil
}

// CallbackRequest — уведомление шлюза об оплате.
type CallbackRequest struct {
	Data string `json:"data"`
	MAC  string `json:"mac"`
	Type int    `json:"type,omitempty"`
}

// CallbackResult — ответ шлюзу. HTTP-статус всегда 200.
type CallbackResult struct {
	ReturnCode    int    `json:"return_code"`
	ReturnMessage string `json:"return_message"`
}

// OK сообщает, что уведомление принято.
func (r CallbackResult) OK() bool { return r.ReturnCode == ReturnCodeSuccess }

// Service связывает записи об оплате с платёжным шлюзом.
type Service struct {
	uow         domain.UnitOfWork
	gateway     Gateway
	transitions OrderTransitioner
	logger      *log.Entry
	metrics     *metrics.MarketplaceMetrics
	now         func() time.Time
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

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService создаёт платёжный сервис.
func NewService(uow domain.UnitOfWork, gateway Gateway, transitions OrderTransitioner, options ...Option) *Service {
	s := &Service{
		uow:         uow,
		gateway:     gateway,
		transitions: transitions,
		logger:      log.WithField("component", "payment"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateGatewayPayment заводит оплату заказа в шлюзе и возвращает ответ шлюза.
// Идентификатор транзакции сохраняется до обращения к шлюзу, чтобы
// уведомление нашло оплату даже при обрыве ответа.
func (s *Service) CreateGatewayPayment(ctx context.Context, req CreatePaymentRequest) (json.RawMessage, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("order id is required: %w", domain.ErrInvalidArgument)
	}
	if !req.PaymentMethod.Valid() {
		return nil, domain.ErrPaymentMethodInvalid
	}
	if !req.PaymentMethod.Gateway() {
		return nil, domain.ErrPaymentMethodNotGateway
	}

	var gwOrder zalopay.Order
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		payment, err := tx.Payments().GetByOrder(ctx, req.OrderID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			return domain.ErrPaymentMissing
		}
		if err != nil {
			return err
		}
		order, err := tx.Orders().Get(ctx, req.OrderID)
		if err != nil {
			return err
		}

		if payment.Status == domain.PaymentStatusPaid {
			return domain.ErrPaymentAlreadyPaid
		}
		if !payment.Method.Gateway() {
			return domain.ErrPaymentMethodNotGateway
		}
		if order.Status != domain.OrderStatusPendingPayment {
			return domain.ErrOrderNotAwaitingPayment
		}
		if int64(req.Amount) != order.TotalPrice {
			return fmt.Errorf("%w: requested %d, order total %d", domain.ErrPaymentAmountMismatch, req.Amount, order.TotalPrice)
		}

		gwOrder = s.gateway.NewOrder(order.TotalPrice, string(req.PaymentMethod))
		payment.TransactionID = gwOrder.AppTransID
		payment.UpdatedAt = s.now()
		if err := tx.Payments().Save(ctx, payment); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}
		return tx.Timeline().Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelinePaymentInitiated,
			Reason:   gwOrder.AppTransID,
			Occurred: payment.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	raw, err := s.gateway.CreateOrder(ctx, gwOrder)
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id":     req.OrderID,
			"app_trans_id": gwOrder.AppTransID,
		}).Warn("gateway payment failed")
		return nil, err
	}
	return raw, nil
}

// HandleCallback сверяет уведомление шлюза. Подпись проверяется ключом key2;
// повторное уведомление с тем же app_trans_id ничего не меняет.
func (s *Service) HandleCallback(ctx context.Context, req CallbackRequest) CallbackResult {
	if !s.gateway.VerifyCallback(req.Data, req.MAC) {
		s.metrics.RecordCallback(zalopay.Provider, metrics.CallbackBadMAC)
		s.logger.Warn("callback mac mismatch")
		return CallbackResult{ReturnCode: ReturnCodeMACMismatch, ReturnMessage: domain.ErrMACMismatch.Error()}
	}

	data, err := zalopay.ParseCallbackData(req.Data)
	if err != nil {
		s.metrics.RecordCallback(zalopay.Provider, metrics.CallbackFailed)
		return CallbackResult{ReturnCode: ReturnCodeFailed, ReturnMessage: err.Error()}
	}

	outcome, applied, err := s.reconcile(ctx, data, req.Data)
	if err != nil {
		s.metrics.RecordCallback(zalopay.Provider, metrics.CallbackFailed)
		s.logger.WithError(err).WithField("app_trans_id", data.AppTransID).Error("callback reconciliation failed")
		return CallbackResult{ReturnCode: ReturnCodeFailed, ReturnMessage: err.Error()}
	}

	s.metrics.RecordCallback(zalopay.Provider, outcome)
	if applied != nil {
		s.metrics.RecordTransition(string(applied.Plan.Event), string(applied.Plan.To))
	}
	s.logger.WithFields(log.Fields{
		"app_trans_id": data.AppTransID,
		"outcome":      outcome,
	}).Info("callback processed")
	return CallbackResult{ReturnCode: ReturnCodeSuccess, ReturnMessage: "success"}
}

func (s *Service) reconcile(ctx context.Context, data zalopay.CallbackData, payload string) (string, *orders.TransitionResult, error) {
	var (
		outcome string
		applied *orders.TransitionResult
	)
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		outcome, applied = "", nil
		now := s.now()

		payment, err := tx.Payments().GetByTransaction(ctx, data.AppTransID)
		if errors.Is(err, domain.ErrPaymentNotFound) {
			outcome = metrics.CallbackUnknown
			return nil
		}
		if err != nil {
			return err
		}

		inserted, err := tx.PaymentEvents().Record(ctx, domain.PaymentEvent{
			Provider:    zalopay.Provider,
			EventID:     data.AppTransID,
			PaymentID:   payment.ID,
			OrderID:     payment.OrderID,
			Payload:     []byte(payload),
			ProcessedAt: now,
		})
		if err != nil {
			return fmt.Errorf("record payment event: %w", err)
		}
		if !inserted || payment.Status == domain.PaymentStatusPaid {
			outcome = metrics.CallbackDuplicate
			return nil
		}

		payment.Status = domain.PaymentStatusPaid
		payment.UpdatedAt = now
		if err := tx.Payments().Save(ctx, payment); err != nil {
			return fmt.Errorf("save payment: %w", err)
		}

		order, err := tx.Orders().Get(ctx, payment.OrderID)
		if err != nil {
			return err
		}

		timeline := domain.TimelineEvent{OrderID: order.ID, Type: domain.TimelinePaymentReceived, Reason: data.AppTransID, Occurred: now}
		outcome = metrics.CallbackApplied
		if order.Status == domain.OrderStatusPendingPayment {
			result, err := s.transitions.Transition(ctx, tx, order.ID, domain.EventPaymentConfirmed, "", domain.TransitionInput{})
			if err != nil {
				return err
			}
			applied = &result
		} else {
			// Оплата пришла после отмены: статус не трогаем, фиксируем в истории.
			timeline.Type = domain.TimelinePaymentLate
			outcome = metrics.CallbackLate
		}
		if err := tx.Timeline().Append(ctx, timeline); err != nil {
			return fmt.Errorf("append timeline event: %w", err)
		}

		event, err := json.Marshal(map[string]interface{}{
			"order_id":     order.ID,
			"payment_id":   payment.ID,
			"app_trans_id": data.AppTransID,
			"amount":       data.Amount,
			"late":         outcome == metrics.CallbackLate,
			"ts":           now.Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal payment event: %w", err)
		}
		_, err = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order",
			AggregateID:   order.ID,
			EventType:     orders.EventPaymentReceived,
			Payload:       event,
		})
		return err
	})
	if err != nil {
		return "", nil, err
	}
	return outcome, applied, nil
}
