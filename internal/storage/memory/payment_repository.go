package memory

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type paymentRepository struct {
	v *view
}

func (r *paymentRepository) Create(_ context.Context, payment domain.Payment) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.payments[payment.ID]; exists {
			return domain.ErrDuplicateID
		}
		for _, p := range st.payments {
			if p.OrderID == payment.OrderID {
				return domain.ErrDuplicateID
			}
		}
		st.payments[payment.ID] = payment
		return nil
	})
}

func (r *paymentRepository) GetByOrder(_ context.Context, orderID string) (domain.Payment, error) {
	return r.find(func(p domain.Payment) bool { return p.OrderID == orderID })
}

func (r *paymentRepository) GetByTransaction(_ context.Context, transactionID string) (domain.Payment, error) {
	if transactionID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.find(func(p domain.Payment) bool { return p.TransactionID == transactionID })
}

func (r *paymentRepository) Save(_ context.Context, payment domain.Payment) error {
	return r.v.write(func(st *state) error {
		if _, ok := st.payments[payment.ID]; !ok {
			return domain.ErrPaymentNotFound
		}
		st.payments[payment.ID] = payment
		return nil
	})
}

func (r *paymentRepository) find(match func(domain.Payment) bool) (domain.Payment, error) {
	var out domain.Payment
	err := r.v.read(func(st *state) error {
		for _, p := range st.payments {
			if match(p) {
				out = p
				return nil
			}
		}
		return domain.ErrPaymentNotFound
	})
	return out, err
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
