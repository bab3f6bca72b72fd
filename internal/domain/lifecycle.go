package domain

import "fmt"

// OrderEvent — событие, которое двигает заказ по жизненному циклу.
type OrderEvent string

const (
	EventRequestCancel    OrderEvent = "request_cancel"
	EventAcceptCancel     OrderEvent = "accept_cancel"
	EventRequestRefund    OrderEvent = "request_refund"
	EventAcceptRefund     OrderEvent = "accept_refund"
	EventRejectRefund     OrderEvent = "reject_refund"
	EventReject           OrderEvent = "reject"
	EventPaymentConfirmed OrderEvent = "payment_confirmed"
	EventSetStatus        OrderEvent = "set_status"
)

// TransitionPlan — результат проверки перехода: что менять и какие побочные эффекты выполнить.
type TransitionPlan struct {
	Event OrderEvent
	From  OrderStatus
	To    OrderStatus
	// ReleaseStock — вернуть на склад количество по каждой позиции.
	ReleaseStock bool
	// SettlePayment — отметить оплату наложенным платежом как полученную.
	SettlePayment bool
}

// TransitionError описывает отклонённый переход.
type TransitionError struct {
	Event OrderEvent
	From  OrderStatus
	To    OrderStatus
}

func (e *TransitionError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("cannot %s order in status %s (target %s)", e.Event, e.From, e.To)
	}
	return fmt.Sprintf("cannot %s order in status %s", e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type transitionRule struct {
	// from == nil означает любой открытый статус.
	from   []OrderStatus
	target func(from OrderStatus) OrderStatus
}

func fixed(to OrderStatus) func(OrderStatus) OrderStatus {
	return func(OrderStatus) OrderStatus { return to }
}

var transitions = map[OrderEvent]transitionRule{
	EventRequestCancel: {
		from: []OrderStatus{OrderStatusPendingPayment, OrderStatusPending},
		target: func(from OrderStatus) OrderStatus {
			if from == OrderStatusPendingPayment {
				return OrderStatusCancelled
			}
			return OrderStatusRequireCancel
		},
	},
	EventAcceptCancel: {
		from:   []OrderStatus{OrderStatusPendingPayment, OrderStatusPending, OrderStatusRequireCancel},
		target: fixed(OrderStatusCancelled),
	},
	EventRequestRefund: {
		from:   []OrderStatus{OrderStatusCompleted, OrderStatusShipping},
		target: fixed(OrderStatusRequireRefund),
	},
	EventAcceptRefund: {target: fixed(OrderStatusRefunded)},
	EventRejectRefund: {target: fixed(OrderStatusRejected)},
	EventReject:       {target: fixed(OrderStatusRejected)},
	EventPaymentConfirmed: {
		from:   []OrderStatus{OrderStatusPendingPayment},
		target: fixed(OrderStatusPending),
	},
}

// Целевые статусы общего перехода, которые проверяются теми же правилами,
// что и соответствующие действия.
var guardedTargets = map[OrderStatus]transitionRule{
	OrderStatusRequireCancel: {
		from:   []OrderStatus{OrderStatusPendingPayment, OrderStatusPending},
		target: fixed(OrderStatusRequireCancel),
	},
	OrderStatusRequireRefund: transitions[EventRequestRefund],
	OrderStatusCancelled:     transitions[EventAcceptCancel],
	OrderStatusRefunded:      transitions[EventAcceptRefund],
	OrderStatusRejected:      transitions[EventReject],
}

// PlanTransition проверяет событие против текущего статуса.
// requested используется только для EventSetStatus.
func PlanTransition(event OrderEvent, current, requested OrderStatus) (TransitionPlan, error) {
	var rule transitionRule

	switch event {
	case EventSetStatus:
		if !requested.Valid() {
			return TransitionPlan{}, ErrUnknownOrderStatus
		}
		guarded, ok := guardedTargets[requested]
		if !ok {
			// Продвижение по доставке не проверяет исходный статус,
			// но закрытый заказ не открывается заново.
			if current.Closed() {
				return TransitionPlan{}, &TransitionError{Event: event, From: current, To: requested}
			}
			return finalize(TransitionPlan{Event: event, From: current, To: requested}), nil
		}
		rule = guarded
	default:
		known, ok := transitions[event]
		if !ok {
			return TransitionPlan{}, fmt.Errorf("unknown order event %q: %w", event, ErrInvalidArgument)
		}
		rule = known
	}

	if !rule.allows(current) {
		return TransitionPlan{}, &TransitionError{Event: event, From: current, To: requested}
	}

	return finalize(TransitionPlan{Event: event, From: current, To: rule.target(current)}), nil
}

func (r transitionRule) allows(current OrderStatus) bool {
	if r.from == nil {
		return current.Valid() && !current.Closed()
	}
	for _, s := range r.from {
		if s == current {
			return true
		}
	}
	return false
}

func finalize(plan TransitionPlan) TransitionPlan {
	plan.ReleaseStock = plan.To == OrderStatusCancelled
	plan.SettlePayment = plan.To == OrderStatusCompleted
	return plan
}

// Apply переносит переход на заказ: статус и сопутствующие поля.
func (p TransitionPlan) Apply(order *Order, input TransitionInput) {
	order.Status = p.To
	switch p.Event {
	case EventRequestCancel, EventAcceptCancel:
		if input.Reason != "" {
			order.CancelReason = input.Reason
		}
	case EventRequestRefund:
		order.RefundReason = input.Reason
		order.RefundEvidence = append([]string(nil), input.Evidence...)
	case EventReject, EventRejectRefund:
		order.RejectReason = input.Reason
	}
}

// TransitionInput — данные, сопровождающие действие над заказом.
type TransitionInput struct {
	Reason   string
	Evidence []string
}
