package orders

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// GetOrder возвращает заказ с позициями и оплатой.
func (s *Service) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.uow.Orders().Get(ctx, orderID)
}

// ListBuyerOrders возвращает заказы покупателя, новые первыми.
func (s *Service) ListBuyerOrders(ctx context.Context, buyerID string) ([]domain.Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, domain.ErrBuyerRequired
	}
	return s.uow.Orders().ListByBuyer(ctx, buyerID)
}

// ListSellerOrders возвращает страницу очереди заказов продавца.
func (s *Service) ListSellerOrders(ctx context.Context, filter domain.SellerOrderFilter) (domain.OrderPage, error) {
	if strings.TrimSpace(filter.SellerID) == "" {
		return domain.OrderPage{}, domain.ErrSellerRequired
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.OrderPage{}, domain.ErrUnknownOrderStatus
	}
	filter = filter.Normalize()
	if err := filter.Validate(); err != nil {
		return domain.OrderPage{}, err
	}
	return s.uow.Orders().ListBySeller(ctx, filter)
}

// ListTimeline возвращает историю заказа.
func (s *Service) ListTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.uow.Orders().Get(ctx, orderID); err != nil {
		return nil, err
	}
	return s.uow.Timeline().List(ctx, orderID)
}
