package memory

import (
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type orderRepository struct {
	v *view
}

func (r *orderRepository) Create(_ context.Context, order domain.Order) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.orders[order.ID]; exists {
			return domain.ErrDuplicateID
		}
		stored := order.Clone()
		stored.Payment = nil
		st.orders[order.ID] = stored
		return nil
	})
}

func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	var out domain.Order
	err := r.v.read(func(st *state) error {
		order, ok := st.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		out = withPayment(st, order)
		return nil
	})
	return out, err
}

func (r *orderRepository) ListByBuyer(_ context.Context, buyerID string) ([]domain.Order, error) {
	out := make([]domain.Order, 0)
	err := r.v.read(func(st *state) error {
		for _, order := range st.orders {
			if order.BuyerID == buyerID && order.DeletedAt == nil {
				out = append(out, withPayment(st, order))
			}
		}
		return nil
	})
	sortOrdersNewestFirst(out)
	return out, err
}

func (r *orderRepository) ListBySeller(_ context.Context, filter domain.SellerOrderFilter) (domain.OrderPage, error) {
	filter = filter.Normalize()

	matched := make([]domain.Order, 0)
	err := r.v.read(func(st *state) error {
		for _, order := range st.orders {
			if matchesSellerFilter(st, order, filter) {
				matched = append(matched, withPayment(st, order))
			}
		}
		return nil
	})
	if err != nil {
		return domain.OrderPage{}, err
	}
	sortOrdersNewestFirst(matched)

	total := len(matched)
	start := min(max(filter.Offset(), 0), total)
	end := start + filter.Limit
	if end > total {
		end = total
	}

	return domain.NewOrderPage(filter, total, matched[start:end]), nil
}

func (r *orderRepository) ListForReport(_ context.Context, sellerID string, from, to time.Time) ([]domain.Order, error) {
	out := make([]domain.Order, 0)
	err := r.v.read(func(st *state) error {
		for _, order := range st.orders {
			if order.SellerID != sellerID || order.DeletedAt != nil {
				continue
			}
			if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
				continue
			}
			out = append(out, withPayment(st, order))
		}
		return nil
	})
	return out, err
}

func (r *orderRepository) Save(_ context.Context, order domain.Order) error {
	return r.v.write(func(st *state) error {
		current, ok := st.orders[order.ID]
		if !ok {
			return domain.ErrOrderNotFound
		}
		if current.Version != order.Version {
			return domain.ErrOrderVersionConflict
		}

		// Позиции после оформления не меняются.
		current.Status = order.Status
		current.Note = order.Note
		current.CancelReason = order.CancelReason
		current.RefundReason = order.RefundReason
		current.RefundEvidence = append([]string(nil), order.RefundEvidence...)
		current.RejectReason = order.RejectReason
		current.ShippingDate = order.ShippingDate
		current.DeletedAt = order.DeletedAt
		current.UpdatedAt = order.UpdatedAt
		current.Version++
		st.orders[order.ID] = current
		return nil
	})
}

func withPayment(st *state, order domain.Order) domain.Order {
	out := order.Clone()
	for _, p := range st.payments {
		if p.OrderID == order.ID {
			payment := p
			out.Payment = &payment
			break
		}
	}
	return out
}

func matchesSellerFilter(st *state, order domain.Order, f domain.SellerOrderFilter) bool {
	if order.SellerID != f.SellerID || order.DeletedAt != nil {
		return false
	}
	if f.Status != "" && order.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && order.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && order.CreatedAt.After(f.To) {
		return false
	}

	if f.Province != "" || f.District != "" || f.Ward != "" {
		addr, ok := st.addresses[order.AddressID]
		if !ok {
			return false
		}
		if f.Province != "" && addr.Province != f.Province {
			return false
		}
		if f.District != "" && addr.District != f.District {
			return false
		}
		if f.Ward != "" && addr.Ward != f.Ward {
			return false
		}
	}

	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	if buyer, ok := st.buyers[order.BuyerID]; ok && strings.Contains(strings.ToLower(buyer.Name), needle) {
		return true
	}
	for _, d := range order.Details {
		if p, ok := st.products[d.ProductID]; ok && strings.Contains(strings.ToLower(p.Name), needle) {
			return true
		}
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
