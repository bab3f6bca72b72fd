package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// LineRequest — позиция в запросе на оформление.
type LineRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest — заказ одного продавца внутри оформления корзины.
// TotalPrice — сумма, которую видел клиент; 0 означает «посчитать на сервере».
type CreateOrderRequest struct {
	SellerID      string               `json:"sellerId"`
	AddressID     string               `json:"addressId"`
	TotalPrice    int64                `json:"totalPrice"`
	ShippingFee   int64                `json:"shippingFee"`
	Note          string               `json:"note"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	PaymentStatus domain.PaymentStatus `json:"paymentStatus,omitempty"`
	TransactionID string               `json:"transactionId,omitempty"`
	Lines         []LineRequest        `json:"orderDetails"`
}

// Validate проверяет форму запроса без обращения к хранилищу.
func (r CreateOrderRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.SellerID) == "" {
		errs = append(errs, domain.ErrSellerRequired)
	}
	if strings.TrimSpace(r.AddressID) == "" {
		errs = append(errs, domain.ErrAddressRequired)
	}
	if r.ShippingFee < 0 {
		errs = append(errs, domain.ErrShippingFeeNegative)
	}
	if r.TotalPrice < 0 {
		errs = append(errs, domain.ErrTotalNegative)
	}
	if !r.PaymentMethod.Valid() {
		errs = append(errs, domain.ErrPaymentMethodInvalid)
	}
	if r.PaymentStatus != "" && !r.PaymentStatus.Valid() {
		errs = append(errs, domain.ErrPaymentStatusInvalid)
	}
	if len(r.Lines) == 0 {
		errs = append(errs, domain.ErrDetailsRequired)
	}
	for i, line := range r.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			errs = append(errs, fmt.Errorf("line %d: %w", i, domain.ErrProductIDRequired))
		}
		if line.Quantity <= 0 {
			errs = append(errs, fmt.Errorf("line %d: %w", i, domain.ErrQuantityInvalid))
		}
		if line.Quantity > domain.MaxQuantity {
			errs = append(errs, fmt.Errorf("line %d: %w", i, domain.ErrQuantityTooLarge))
		}
	}
	if len(errs) == 0 {
		errs = append(errs, checkMergedQuantities(r.Lines)...)
	}
	return errors.Join(errs...)
}

// checkMergedQuantities проверяет суммарное количество по каждому товару:
// повторяющиеся позиции списываются одним обновлением.
func checkMergedQuantities(lines []LineRequest) []error {
	var errs []error
	merged := make(map[string]int, len(lines))
	for _, line := range lines {
		sum, err := domain.AddQuantity(merged[line.ProductID], line.Quantity)
		if err != nil {
			errs = append(errs, fmt.Errorf("product %s: %w", line.ProductID, err))
			continue
		}
		merged[line.ProductID] = sum
	}
	return errs
}

// CreateOrders оформляет корзину покупателя: по заказу на каждого продавца.
// Все заказы создаются в одной транзакции; ошибка любого откатывает всё
// оформление, включая списание остатков.
func (s *Service) CreateOrders(ctx context.Context, buyerID string, requests []CreateOrderRequest) ([]domain.Order, error) {
	if strings.TrimSpace(buyerID) == "" {
		return nil, domain.ErrBuyerRequired
	}
	if len(requests) == 0 {
		return nil, domain.ErrOrdersRequired
	}
	for i, req := range requests {
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
	}

	start := s.now()
	catalog, err := s.resolveProducts(ctx, requests)
	if err != nil {
		s.metrics.RecordCheckoutFailed()
		return nil, err
	}

	var created []domain.Order
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		created = created[:0]

		buyer, err := tx.Directory().GetBuyer(ctx, buyerID)
		if err != nil {
			return err
		}
		for i, req := range requests {
			order, err := s.buildOrder(ctx, tx, buyer, req, catalog)
			if err != nil {
				return fmt.Errorf("order %d: %w", i, err)
			}
			created = append(created, order)
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordCheckoutFailed()
		s.logger.WithError(err).WithField("buyer_id", buyerID).Warn("checkout rolled back")
		return nil, err
	}

	s.metrics.RecordOrdersCreated(len(created), s.now().Sub(start))
	for _, order := range created {
		s.logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"buyer_id":    order.BuyerID,
			"seller_id":   order.SellerID,
			"total_price": order.TotalPrice,
		}).Info("order created")
	}

	s.clearCart(ctx, buyerID, created)
	return created, nil
}

// CreateOrder оформляет один заказ.
func (s *Service) CreateOrder(ctx context.Context, buyerID string, req CreateOrderRequest) (domain.Order, error) {
	created, err := s.CreateOrders(ctx, buyerID, []CreateOrderRequest{req})
	if err != nil {
		return domain.Order{}, err
	}
	return created[0], nil
}

// resolveProducts читает товары всех позиций параллельно и проверяет,
// что каждый принадлежит продавцу своего заказа.
func (s *Service) resolveProducts(ctx context.Context, requests []CreateOrderRequest) (map[string]domain.Product, error) {
	type lookup struct {
		productID string
		sellerID  string
	}

	seen := make(map[string]struct{})
	var lookups []lookup
	for _, req := range requests {
		for _, line := range req.Lines {
			if _, ok := seen[line.ProductID]; ok {
				continue
			}
			seen[line.ProductID] = struct{}{}
			lookups = append(lookups, lookup{productID: line.ProductID, sellerID: req.SellerID})
		}
	}

	products := make([]domain.Product, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, l := range lookups {
		g.Go(func() error {
			p, err := s.uow.Products().Get(gctx, l.productID)
			if err != nil {
				return fmt.Errorf("product %s: %w", l.productID, err)
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	catalog := make(map[string]domain.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}

	for _, req := range requests {
		for _, line := range req.Lines {
			if catalog[line.ProductID].SellerID != req.SellerID {
				return nil, fmt.Errorf("product %s: %w", line.ProductID, domain.ErrProductSellerMismatch)
			}
		}
	}
	return catalog, nil
}

func (s *Service) buildOrder(
	ctx context.Context,
	tx domain.Repositories,
	buyer domain.Buyer,
	req CreateOrderRequest,
	catalog map[string]domain.Product,
) (domain.Order, error) {
	address, err := tx.Directory().GetAddress(ctx, req.AddressID)
	if err != nil {
		return domain.Order{}, err
	}
	if address.UserID != buyer.ID {
		return domain.Order{}, domain.ErrAddressNotOwned
	}
	if _, err := tx.Directory().GetSeller(ctx, req.SellerID); err != nil {
		return domain.Order{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:          uuid.NewString(),
		BuyerID:     buyer.ID,
		SellerID:    req.SellerID,
		AddressID:   address.ID,
		ShippingFee: req.ShippingFee,
		Note:        req.Note,
		Status:      domain.OrderStatusPendingPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, line := range req.Lines {
		order.Details = append(order.Details, domain.OrderDetail{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     catalog[line.ProductID].Price,
			CreatedAt: now,
		})
	}

	order.TotalPrice, err = order.ComputeTotal()
	if err != nil {
		return domain.Order{}, err
	}
	if req.TotalPrice > 0 && req.TotalPrice != order.TotalPrice {
		return domain.Order{}, fmt.Errorf("%w: declared %d, computed %d", domain.ErrTotalMismatch, req.TotalPrice, order.TotalPrice)
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	if err := s.adjuster.Reserve(ctx, tx.Products(), order.ID, order.Details); err != nil {
		return domain.Order{}, err
	}

	payment := domain.Payment{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Method:        req.PaymentMethod,
		Status:        domain.PaymentStatusUnpaid,
		TransactionID: req.TransactionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.PaymentStatus != "" {
		payment.Status = req.PaymentStatus
	}

	if err := tx.Orders().Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	if err := tx.Payments().Create(ctx, payment); err != nil {
		return domain.Order{}, fmt.Errorf("create payment: %w", err)
	}
	order.Payment = &payment

	err = s.emit(ctx, tx, order, EventOrderCreated, domain.TimelineEvent{Type: domain.TimelineOrderCreated}, map[string]interface{}{
		"total_price":    order.TotalPrice,
		"shipping_fee":   order.ShippingFee,
		"payment_method": payment.Method,
		"lines":          len(order.Details),
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// clearCart убирает оформленные товары из корзины. Ошибки только логируются:
// заказ уже зафиксирован.
func (s *Service) clearCart(ctx context.Context, buyerID string, created []domain.Order) {
	for _, order := range created {
		for _, d := range order.Details {
			err := s.uow.Carts().RemoveLine(ctx, buyerID, d.ProductID)
			if err == nil || errors.Is(err, domain.ErrCartLineNotFound) {
				continue
			}
			s.logger.WithError(err).WithFields(log.Fields{
				"buyer_id":   buyerID,
				"product_id": d.ProductID,
			}).Warn("remove cart line failed")
		}
	}
}
