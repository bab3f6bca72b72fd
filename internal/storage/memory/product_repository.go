package memory

import (
	"context"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type productRepository struct {
	v *view
}

func (r *productRepository) Get(_ context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := r.v.read(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		out = p
		return nil
	})
	return out, err
}

// AdjustQuantity проверяет и меняет остаток под одной блокировкой,
// как условный UPDATE в PostgreSQL.
func (r *productRepository) AdjustQuantity(_ context.Context, id string, delta int) (int, error) {
	var quantity int
	err := r.v.write(func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if delta < 0 && p.Quantity+delta < 0 {
			return domain.ErrInsufficientStock
		}
		if delta > 0 && p.Quantity > domain.MaxQuantity-delta {
			return domain.ErrQuantityTooLarge
		}
		p.Quantity += delta
		st.products[id] = p
		quantity = p.Quantity
		return nil
	})
	return quantity, err
}

func (r *productRepository) AppendMovement(_ context.Context, movement domain.StockMovement) error {
	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = nowUTC()
	}
	return r.v.write(func(st *state) error {
		st.movements = append(st.movements, movement)
		return nil
	})
}

func (r *productRepository) ListMovements(_ context.Context, productID string) ([]domain.StockMovement, error) {
	out := make([]domain.StockMovement, 0)
	err := r.v.read(func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID == productID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

var _ domain.ProductRepository = (*productRepository)(nil)
