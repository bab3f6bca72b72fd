package memory

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type paymentEventRepository struct {
	v *view
}

func (r *paymentEventRepository) Record(_ context.Context, event domain.PaymentEvent) (bool, error) {
	key := event.Provider + "/" + event.EventID
	inserted := false
	err := r.v.write(func(st *state) error {
		if _, exists := st.paymentEvents[key]; exists {
			return nil
		}
		if event.ProcessedAt.IsZero() {
			event.ProcessedAt = nowUTC()
		}
		event.Payload = append([]byte(nil), event.Payload...)
		st.paymentEvents[key] = event
		inserted = true
		return nil
	})
	return inserted, err
}

var _ domain.PaymentEventRepository = (*paymentEventRepository)(nil)
