package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string    `json:"orderId"`
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// Типы событий timeline.
const (
	TimelineOrderCreated     = "OrderCreated"
	TimelineStatusChanged    = "StatusChanged"
	TimelinePaymentInitiated = "PaymentInitiated"
	TimelinePaymentReceived  = "PaymentReceived"
	TimelinePaymentLate      = "PaymentReceivedForClosedFlow"
	TimelineStockReleased    = "StockReleased"
	TimelineRefundRequested  = "RefundRequested"
)
