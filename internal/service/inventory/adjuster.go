package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Adjuster меняет остатки товаров при оформлении и отмене заказов.
// Работает с репозиторием, который ей передали: внутри транзакции
// все списания откатываются вместе с заказом.
type Adjuster struct {
	logger  *log.Entry
	metrics *metrics.MarketplaceMetrics
	now     func() time.Time
}

// Option настраивает Adjuster.
type Option func(*Adjuster)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(a *Adjuster) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics задаёт метрики движения остатков.
func WithMetrics(m *metrics.MarketplaceMetrics) Option {
	return func(a *Adjuster) {
		a.metrics = m
	}
}

// NewAdjuster создаёт Adjuster.
func NewAdjuster(options ...Option) *Adjuster {
	a := &Adjuster{
		logger: log.WithField("component", "inventory"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// LineError — ошибка изменения остатка по одному товару.
type LineError struct {
	ProductID string
	Err       error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("product %s: %v", e.ProductID, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Reserve списывает остатки под позиции заказа. Списание условное:
// остаток не может стать отрицательным. Ошибки по всем товарам
// собираются в одну через errors.Join.
func (a *Adjuster) Reserve(ctx context.Context, products domain.ProductRepository, orderID string, details []domain.OrderDetail) error {
	return a.apply(ctx, products, orderID, "", details, -1, domain.StockReasonReserve)
}

// Release возвращает остатки по позициям заказа.
func (a *Adjuster) Release(ctx context.Context, products domain.ProductRepository, orderID string, details []domain.OrderDetail) error {
	return a.apply(ctx, products, orderID, "", details, 1, domain.StockReasonRelease)
}

// Restock пополняет остаток товара продавцом.
func (a *Adjuster) Restock(ctx context.Context, products domain.ProductRepository, productID, userID string, quantity int) (domain.Product, error) {
	if productID == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}
	if quantity <= 0 {
		return domain.Product{}, domain.ErrRestockQuantityInvalid
	}
	if quantity > domain.MaxQuantity {
		return domain.Product{}, domain.ErrQuantityTooLarge
	}

	err := a.apply(ctx, products, "", userID, []domain.OrderDetail{{ProductID: productID, Quantity: quantity}}, 1, domain.StockReasonRestock)
	if err != nil {
		return domain.Product{}, err
	}
	return products.Get(ctx, productID)
}

func (a *Adjuster) apply(
	ctx context.Context,
	products domain.ProductRepository,
	orderID, userID string,
	details []domain.OrderDetail,
	sign int,
	reason domain.StockReason,
) error {
	quantities, err := mergeLines(details)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		errs  []error
		moved int
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		qty := quantities[id]
		remaining, err := products.AdjustQuantity(ctx, id, sign*qty)
		if err != nil {
			errs = append(errs, &LineError{ProductID: id, Err: err})
			continue
		}

		movement := domain.StockMovement{
			ProductID: id,
			OrderID:   orderID,
			UserID:    userID,
			Delta:     sign * qty,
			Reason:    reason,
			CreatedAt: a.now(),
		}
		if err := products.AppendMovement(ctx, movement); err != nil {
			errs = append(errs, &LineError{ProductID: id, Err: err})
			continue
		}
		moved += qty

		a.logger.WithFields(log.Fields{
			"order_id":   orderID,
			"product_id": id,
			"delta":      sign * qty,
			"remaining":  remaining,
			"reason":     reason,
		}).Debug("stock adjusted")
	}

	if len(errs) > 0 {
		a.logger.WithFields(log.Fields{
			"order_id": orderID,
			"reason":   reason,
			"failed":   len(errs),
		}).Warn("stock adjustment failed")
		return errors.Join(errs...)
	}

	a.metrics.RecordStockAdjusted(string(reason), moved)
	return nil
}

// mergeLines суммирует количество по товару: две позиции одного товара
// списываются одним обновлением.
func mergeLines(details []domain.OrderDetail) (map[string]int, error) {
	out := make(map[string]int, len(details))
	for _, d := range details {
		if d.ProductID == "" {
			return nil, domain.ErrProductIDRequired
		}
		if d.Quantity <= 0 {
			return nil, domain.ErrQuantityInvalid
		}
		sum, err := domain.AddQuantity(out[d.ProductID], d.Quantity)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", d.ProductID, err)
		}
		out[d.ProductID] = sum
	}
	return out, nil
}
