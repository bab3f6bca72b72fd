package domain

import (
	"context"
	"time"
)

// OrderRepository хранит заказы вместе с позициями.
type OrderRepository interface {
	// Create сохраняет заказ и его позиции. Оплата сохраняется отдельно.
	Create(ctx context.Context, order Order) error
	Get(ctx context.Context, id string) (Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListBySeller(ctx context.Context, filter SellerOrderFilter) (OrderPage, error)
	// ListForReport возвращает заказы продавца с оплатой, созданные в [from, to).
	ListForReport(ctx context.Context, sellerID string, from, to time.Time) ([]Order, error)
	// Save обновляет изменяемые поля заказа с проверкой версии.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository хранит записи об оплатах.
type PaymentRepository interface {
	Create(ctx context.Context, payment Payment) error
	GetByOrder(ctx context.Context, orderID string) (Payment, error)
	GetByTransaction(ctx context.Context, transactionID string) (Payment, error)
	Save(ctx context.Context, payment Payment) error
}

// ProductRepository даёт доступ к ценам и остаткам товаров.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	// AdjustQuantity атомарно меняет остаток на delta и возвращает новое значение.
	// Отрицательный delta применяется только если остатка хватает.
	AdjustQuantity(ctx context.Context, id string, delta int) (int, error)
	AppendMovement(ctx context.Context, movement StockMovement) error
	ListMovements(ctx context.Context, productID string) ([]StockMovement, error)
}

// CartRepository — корзина покупателя.
type CartRepository interface {
	RemoveLine(ctx context.Context, buyerID, productID string) error
}

// DirectoryRepository — справочник покупателей, адресов и продавцов.
type DirectoryRepository interface {
	GetBuyer(ctx context.Context, id string) (Buyer, error)
	GetAddress(ctx context.Context, id string) (Address, error)
	GetSeller(ctx context.Context, id string) (Seller, error)
}

// PaymentEventRepository — журнал обработанных событий платёжного шлюза.
type PaymentEventRepository interface {
	// Record сохраняет событие. false означает, что событие уже было обработано.
	Record(ctx context.Context, event PaymentEvent) (bool, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по Idempotency-Key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Repositories — набор репозиториев одной единицы работы.
type Repositories interface {
	Orders() OrderRepository
	Payments() PaymentRepository
	Products() ProductRepository
	Carts() CartRepository
	Directory() DirectoryRepository
	PaymentEvents() PaymentEventRepository
	Outbox() OutboxRepository
	Timeline() TimelineRepository
}

// Transactor выполняет fn атомарно: все изменения через tx фиксируются
// вместе или не фиксируются вовсе.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

// UnitOfWork объединяет чтение вне транзакции и транзакционную запись.
type UnitOfWork interface {
	Repositories
	Transactor
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
