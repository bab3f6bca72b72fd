package domain

import "errors"

// Классы ошибок. Конкретные ошибки ниже оборачивают один из них,
// транспортный слой выбирает код ответа через errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrUpstream          = errors.New("upstream failure")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

var (
	// Ошибка отсутствующего идентификатора покупателя.
	ErrBuyerRequired = newError(ErrInvalidArgument, "buyer id is required")
	// Ошибка отсутствующего идентификатора продавца.
	ErrSellerRequired = newError(ErrInvalidArgument, "seller id is required")
	// Ошибка отсутствующего адреса доставки.
	ErrAddressRequired = newError(ErrInvalidArgument, "address id is required")
	// Ошибка пустого списка позиций.
	ErrDetailsRequired = newError(ErrInvalidArgument, "order must contain at least one line")
	// Ошибка отсутствующего товара в позиции.
	ErrProductIDRequired = newError(ErrInvalidArgument, "product id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = newError(ErrInvalidArgument, "quantity must be greater than zero")
	// Ошибка слишком большого количества товара (больше MaxQuantity).
	ErrQuantityTooLarge = newError(ErrInvalidArgument, "quantity is too large")
	// Ошибка переполнения суммы заказа.
	ErrAmountOverflow = newError(ErrInvalidArgument, "order amount is out of range")
	// Ошибка отрицательной итоговой суммы заказа.
	ErrTotalNegative = newError(ErrInvalidArgument, "total price must be non-negative")
	// Ошибка отрицательной цены позиции.
	ErrPriceNegative = newError(ErrInvalidArgument, "price must be non-negative")
	// Ошибка отрицательной стоимости доставки.
	ErrShippingFeeNegative = newError(ErrInvalidArgument, "shipping fee must be non-negative")
	// Ошибка несоответствия заявленной суммы и суммы позиций с доставкой.
	ErrTotalMismatch = newError(ErrInvalidArgument, "total price does not match lines and shipping fee")
	// Ошибка неизвестного статуса заказа.
	ErrUnknownOrderStatus = newError(ErrInvalidArgument, "unknown order status")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = newError(ErrInvalidArgument, "unsupported payment method")
	// Ошибка неизвестного статуса оплаты.
	ErrPaymentStatusInvalid = newError(ErrInvalidArgument, "unsupported payment status")
	// Адрес доставки принадлежит другому пользователю.
	ErrAddressNotOwned = newError(ErrInvalidArgument, "address does not belong to buyer")
	// Товар продаётся другим продавцом.
	ErrProductSellerMismatch = newError(ErrInvalidArgument, "product does not belong to seller")
	// Пустое оформление: нет ни одного заказа.
	ErrOrdersRequired = newError(ErrInvalidArgument, "at least one order is required")
	// Пустой список заказов в пакетной операции.
	ErrOrderIDsRequired = newError(ErrInvalidArgument, "order ids are required")
	// Сумма оплаты не совпадает с суммой заказа.
	ErrPaymentAmountMismatch = newError(ErrInvalidArgument, "payment amount does not match order total")
	// Для заказа нет записи об оплате.
	ErrPaymentMissing = newError(ErrInvalidArgument, "payment not found")
	// Неположительное количество при пополнении склада.
	ErrRestockQuantityInvalid = newError(ErrInvalidArgument, "restock quantity must be greater than zero")
	// Номер страницы уводит смещение за MaxPageOffset.
	ErrPageOutOfRange = newError(ErrInvalidArgument, "page is out of range")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = newError(ErrNotFound, "order not found")
	// ErrPaymentNotFound возвращается, если запись об оплате не найдена.
	ErrPaymentNotFound = newError(ErrNotFound, "payment not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = newError(ErrNotFound, "product not found")
	// ErrBuyerNotFound возвращается, если покупатель не найден.
	ErrBuyerNotFound = newError(ErrNotFound, "user not found")
	// ErrAddressNotFound возвращается, если адрес не найден.
	ErrAddressNotFound = newError(ErrNotFound, "address not found")
	// ErrSellerNotFound возвращается, если продавец не найден.
	ErrSellerNotFound = newError(ErrNotFound, "seller not found")
	// ErrCartLineNotFound возвращается, если позиции нет в корзине.
	ErrCartLineNotFound = newError(ErrNotFound, "cart item not found")

	// ErrInvalidTransition — переход запрещён текущим статусом заказа.
	ErrInvalidTransition = newError(ErrInvalidState, "order status does not allow this transition")
	// ErrInsufficientStock — остатка товара не хватает для списания.
	ErrInsufficientStock = newError(ErrInvalidState, "insufficient stock")
	// ErrPaymentAlreadyPaid — оплата уже подтверждена.
	ErrPaymentAlreadyPaid = newError(ErrInvalidState, "payment already paid")
	// ErrOrderNotAwaitingPayment — заказ уже не ждёт онлайн-оплаты.
	ErrOrderNotAwaitingPayment = newError(ErrInvalidState, "order is not awaiting payment")
	// ErrPaymentMethodNotGateway — для способа оплаты не нужен шлюз.
	ErrPaymentMethodNotGateway = newError(ErrInvalidState, "payment method does not use a gateway")

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = newError(ErrConflict, "order version conflict")
	// ErrDuplicateID — запись с таким идентификатором уже существует.
	ErrDuplicateID = newError(ErrConflict, "duplicate id")

	// ErrMACMismatch — подпись callback'а не совпала.
	ErrMACMismatch = newError(ErrSignatureMismatch, "mac not equal")
	// ErrGatewayRequest — платёжный шлюз вернул ошибку.
	ErrGatewayRequest = newError(ErrUpstream, "payment gateway request failed")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

var (
	// ErrIdempotencyKeyRequired — пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой хеш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — запрос с этим ключом уже принят.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — ключ не найден.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsIdempotencyConflict проверяет, что ключ уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
