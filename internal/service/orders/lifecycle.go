package orders

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// BatchTransitionError сообщает, на каком заказе остановилась пакетная смена статуса.
type BatchTransitionError struct {
	OrderID string
	Index   int
	Err     error
}

func (e *BatchTransitionError) Error() string {
	return fmt.Sprintf("order %s (#%d): %v", e.OrderID, e.Index, e.Err)
}

func (e *BatchTransitionError) Unwrap() error { return e.Err }

// TransitionResult — заказ после перехода и применённый план.
type TransitionResult struct {
	Order domain.Order
	Plan  domain.TransitionPlan
}

// Transition применяет событие к заказу внутри уже открытой транзакции tx:
// проверяет переход по таблице, возвращает остатки, закрывает оплату
// наложенным платежом, сохраняет заказ и пишет timeline с outbox.
func (s *Service) Transition(
	ctx context.Context,
	tx domain.Repositories,
	orderID string,
	event domain.OrderEvent,
	requested domain.OrderStatus,
	input domain.TransitionInput,
) (TransitionResult, error) {
	order, err := tx.Orders().Get(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}

	plan, err := domain.PlanTransition(event, order.Status, requested)
	if err != nil {
		s.metrics.RecordTransitionRejected(string(event))
		return TransitionResult{}, err
	}

	plan.Apply(&order, input)
	order.UpdatedAt = s.now()
	if plan.To == domain.OrderStatusShipping && order.ShippingDate == nil {
		shipped := order.UpdatedAt
		order.ShippingDate = &shipped
	}

	if plan.ReleaseStock {
		if err := s.adjuster.Release(ctx, tx.Products(), order.ID, order.Details); err != nil {
			return TransitionResult{}, fmt.Errorf("release stock: %w", err)
		}
	}
	if plan.SettlePayment && order.Payment != nil &&
		order.Payment.Method == domain.PaymentMethodCashOnDelivery &&
		order.Payment.Status != domain.PaymentStatusPaid {
		payment := *order.Payment
		payment.Status = domain.PaymentStatusPaid
		payment.UpdatedAt = order.UpdatedAt
		if err := tx.Payments().Save(ctx, payment); err != nil {
			return TransitionResult{}, fmt.Errorf("settle payment: %w", err)
		}
		order.Payment = &payment
	}

	if err := tx.Orders().Save(ctx, order); err != nil {
		return TransitionResult{}, err
	}
	order.Version++

	payload := map[string]interface{}{
		"event":       plan.Event,
		"from_status": plan.From,
	}
	if input.Reason != "" {
		payload["reason"] = input.Reason
	}
	if err := s.emit(ctx, tx, order, EventOrderStatusChanged, domain.TimelineEvent{
		Type:   domain.TimelineStatusChanged,
		Reason: fmt.Sprintf("%s -> %s", plan.From, plan.To),
	}, payload); err != nil {
		return TransitionResult{}, err
	}

	var extra []domain.TimelineEvent
	if plan.ReleaseStock {
		extra = append(extra, domain.TimelineEvent{Type: domain.TimelineStockReleased, Reason: input.Reason})
	}
	if plan.Event == domain.EventRequestRefund {
		extra = append(extra, domain.TimelineEvent{Type: domain.TimelineRefundRequested, Reason: input.Reason})
	}
	for _, ev := range extra {
		ev.OrderID = order.ID
		ev.Occurred = order.UpdatedAt
		if err := tx.Timeline().Append(ctx, ev); err != nil {
			return TransitionResult{}, fmt.Errorf("append timeline event: %w", err)
		}
		s.metrics.RecordTimelineEvent()
	}

	return TransitionResult{Order: order, Plan: plan}, nil
}

// apply выполняет одно событие в собственной транзакции.
func (s *Service) apply(ctx context.Context, orderID string, event domain.OrderEvent, requested domain.OrderStatus, input domain.TransitionInput) (domain.Order, error) {
	var result TransitionResult
	err := s.withRetry(ctx, func(ctx context.Context, tx domain.Repositories) error {
		var err error
		result, err = s.Transition(ctx, tx, orderID, event, requested, input)
		return err
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    event,
		}).Warn("order transition failed")
		return domain.Order{}, err
	}

	s.recordApplied(result)
	return result.Order, nil
}

func (s *Service) recordApplied(result TransitionResult) {
	s.metrics.RecordTransition(string(result.Plan.Event), string(result.Plan.To))
	s.logger.WithFields(log.Fields{
		"order_id": result.Order.ID,
		"event":    result.Plan.Event,
		"from":     result.Plan.From,
		"to":       result.Plan.To,
	}).Info("order status changed")
}

// UpdateOrderStatus — общая смена статуса продавцом.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error) {
	if !status.Valid() {
		return domain.Order{}, domain.ErrUnknownOrderStatus
	}
	return s.apply(ctx, orderID, domain.EventSetStatus, status, domain.TransitionInput{})
}

// UpdateOrdersStatus меняет статус нескольких заказов атомарно: если переход
// запрещён хотя бы для одного, не меняется ни один.
func (s *Service) UpdateOrdersStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus) ([]domain.Order, error) {
	if len(orderIDs) == 0 {
		return nil, domain.ErrOrderIDsRequired
	}
	if !status.Valid() {
		return nil, domain.ErrUnknownOrderStatus
	}
	ids := uniqueIDs(orderIDs)

	var results []TransitionResult
	err := s.withRetry(ctx, func(ctx context.Context, tx domain.Repositories) error {
		results = results[:0]
		for i, id := range ids {
			result, err := s.Transition(ctx, tx, id, domain.EventSetStatus, status, domain.TransitionInput{})
			if err != nil {
				return &BatchTransitionError{OrderID: id, Index: i, Err: err}
			}
			results = append(results, result)
		}
		return nil
	})
	if err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"orders": len(ids),
			"status": status,
		}).Warn("batch status update rolled back")
		return nil, err
	}

	updated := make([]domain.Order, 0, len(results))
	for _, result := range results {
		s.recordApplied(result)
		updated = append(updated, result.Order)
	}
	return updated, nil
}

// RequestCancel — покупатель просит отменить заказ. Неоплаченный заказ
// отменяется сразу, оплаченный ждёт решения продавца.
func (s *Service) RequestCancel(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventRequestCancel, "", domain.TransitionInput{Reason: reason})
}

// AcceptCancel — продавец подтверждает отмену.
func (s *Service) AcceptCancel(ctx context.Context, orderID string) (domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventAcceptCancel, "", domain.TransitionInput{})
}

// RequestRefund — покупатель просит возврат доставленного заказа.
func (s *Service) RequestRefund(ctx context.Context, orderID, reason string, evidence []string) (domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventRequestRefund, "", domain.TransitionInput{Reason: reason, Evidence: evidence})
}

// AcceptRefund — продавец одобряет возврат.
func (s *Service) AcceptRefund(ctx context.Context, orderID string) (domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventAcceptRefund, "", domain.TransitionInput{})
}

// RejectRefund — продавец отклоняет возврат.
func (s *Service) RejectRefund(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventRejectRefund, "", domain.TransitionInput{Reason: reason})
}

// Reject — продавец отклоняет заказ.
func (s *Service) Reject(ctx context.Context, orderID, reason string) (domain.Order, error) {
	return s.apply(ctx, orderID, domain.EventReject, "", domain.TransitionInput{Reason: reason})
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
