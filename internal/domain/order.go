package domain

import "time"

// OrderStatus описывает жизненный цикл заказа маркетплейса.
type OrderStatus string

const (
	// OrderStatusPendingPayment — заказ создан и ждёт оплаты.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPending — оплата подтверждена (или не требуется), заказ ждёт продавца.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPreparingForShipping — продавец собирает заказ.
	OrderStatusPreparingForShipping OrderStatus = "preparing_for_shipping"
	// OrderStatusShipping — заказ передан в доставку.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusCompleted — заказ получен покупателем.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusRequireCancel — покупатель запросил отмену, ждём решения продавца.
	OrderStatusRequireCancel OrderStatus = "require_cancel"
	// OrderStatusCancelled — заказ отменён, сток возвращён.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRequireRefund — покупатель запросил возврат.
	OrderStatusRequireRefund OrderStatus = "require_refund"
	// OrderStatusRefunded — возврат одобрен.
	OrderStatusRefunded OrderStatus = "refunded"
	// OrderStatusRejected — продавец отклонил заказ или возврат.
	OrderStatusRejected OrderStatus = "rejected"
)

var allOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPending,
	OrderStatusPreparingForShipping,
	OrderStatusShipping,
	OrderStatusCompleted,
	OrderStatusRequireCancel,
	OrderStatusCancelled,
	OrderStatusRequireRefund,
	OrderStatusRefunded,
	OrderStatusRejected,
}

// OrderStatuses возвращает все поддерживаемые статусы в порядке жизненного цикла.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(allOrderStatuses))
	copy(out, allOrderStatuses)
	return out
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	for _, known := range allOrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Closed сообщает, что заказ больше не может менять статус.
func (s OrderStatus) Closed() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusRefunded, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// ParseOrderStatus разбирает статус из внешнего ввода.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrUnknownOrderStatus
	}
	return status, nil
}

// OrderDetail — позиция заказа. Цена фиксируется в момент оформления.
type OrderDetail struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"orderId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"createdAt"`
}

// Subtotal возвращает стоимость позиции без доставки.
func (d OrderDetail) Subtotal() (int64, error) {
	return MulAmount(d.Price, d.Quantity)
}

// Order агрегирует заказ одного покупателя у одного продавца.
type Order struct {
	ID             string        `json:"id"`
	BuyerID        string        `json:"userId"`
	SellerID       string        `json:"sellerId"`
	AddressID      string        `json:"addressId"`
	TotalPrice     int64         `json:"totalPrice"`
	ShippingFee    int64         `json:"shippingFee"`
	Note           string        `json:"note,omitempty"`
	CancelReason   string        `json:"cancelReason,omitempty"`
	RefundReason   string        `json:"refundReason,omitempty"`
	RefundEvidence []string      `json:"refundReasonImage,omitempty"`
	RejectReason   string        `json:"rejectReason,omitempty"`
	Status         OrderStatus   `json:"orderStatus"`
	ShippingDate   *time.Time    `json:"shippingDate,omitempty"`
	DeletedAt      *time.Time    `json:"deletedAt,omitempty"`
	Details        []OrderDetail `json:"orderDetails"`
	Payment        *Payment      `json:"payment,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// DetailsTotal суммирует позиции заказа. Переполнение возвращается
// как ErrAmountOverflow.
func (o *Order) DetailsTotal() (int64, error) {
	var total int64
	for _, d := range o.Details {
		sub, err := d.Subtotal()
		if err != nil {
			return 0, err
		}
		if total, err = AddAmount(total, sub); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ComputeTotal возвращает сумму позиций и доставки.
func (o *Order) ComputeTotal() (int64, error) {
	details, err := o.DetailsTotal()
	if err != nil {
		return 0, err
	}
	return AddAmount(details, o.ShippingFee)
}

// Revenue — выручка продавца по заказу без стоимости доставки.
func (o *Order) Revenue() int64 {
	return o.TotalPrice - o.ShippingFee
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if o.SellerID == "" {
		errs = append(errs, ErrSellerRequired)
	}
	if o.AddressID == "" {
		errs = append(errs, ErrAddressRequired)
	}
	if len(o.Details) == 0 {
		errs = append(errs, ErrDetailsRequired)
	}
	if o.ShippingFee < 0 {
		errs = append(errs, ErrShippingFeeNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownOrderStatus)
	}

	for _, d := range o.Details {
		if d.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if d.Quantity <= 0 {
			errs = append(errs, ErrQuantityInvalid)
		}
		if d.Quantity > MaxQuantity {
			errs = append(errs, ErrQuantityTooLarge)
		}
		if d.Price < 0 {
			errs = append(errs, ErrPriceNegative)
		}
	}
	if o.TotalPrice < 0 {
		errs = append(errs, ErrTotalNegative)
	}
	if len(errs) > 0 {
		return errs
	}
	total, err := o.ComputeTotal()
	switch {
	case err != nil:
		errs = append(errs, err)
	case total != o.TotalPrice:
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}

// Clone возвращает глубокую копию заказа.
func (o Order) Clone() Order {
	out := o
	out.RefundEvidence = append([]string(nil), o.RefundEvidence...)
	out.Details = append([]OrderDetail(nil), o.Details...)
	if o.Payment != nil {
		p := *o.Payment
		out.Payment = &p
	}
	if o.ShippingDate != nil {
		t := *o.ShippingDate
		out.ShippingDate = &t
	}
	if o.DeletedAt != nil {
		t := *o.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
