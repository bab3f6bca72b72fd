package domain

import "time"

// PaymentMethod — способ оплаты заказа.
type PaymentMethod string

const (
	// PaymentMethodCashOnDelivery — оплата курьеру при получении.
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	// PaymentMethodZaloPay — оплата через платёжный шлюз ZaloPay.
	PaymentMethodZaloPay PaymentMethod = "zalopay"
)

// Valid проверяет, что способ оплаты поддерживается.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodCashOnDelivery || m == PaymentMethodZaloPay
}

// Gateway сообщает, что оплата проходит через внешний шлюз.
func (m PaymentMethod) Gateway() bool {
	return m == PaymentMethodZaloPay
}

// PaymentStatus — состояние оплаты.
type PaymentStatus string

const (
	// PaymentStatusUnpaid — оплата ещё не поступила.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid — оплата подтверждена.
	PaymentStatusPaid PaymentStatus = "paid"
)

// Valid проверяет, что статус оплаты поддерживается.
func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusUnpaid || s == PaymentStatusPaid
}

// Payment — единственная запись об оплате заказа (1:1).
type Payment struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"orderId"`
	Method        PaymentMethod `json:"paymentMethod"`
	Status        PaymentStatus `json:"paymentStatus"`
	TransactionID string        `json:"transactionId,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// PaymentEvent — запись журнала обработанных callback'ов шлюза.
type PaymentEvent struct {
	Provider    string
	EventID     string
	PaymentID   string
	OrderID     string
	Payload     []byte
	ProcessedAt time.Time
}
