package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type productRepository struct {
	q queryer
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p domain.Product
	err := r.q.QueryRowContext(ctx, `
		SELECT id, seller_id, name, price, quantity
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.SellerID, &p.Name, &p.Price, &p.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	return p, nil
}

// AdjustQuantity меняет остаток одним условным UPDATE: строка не
// обновляется, если остаток ушёл бы в минус или за MaxQuantity.
func (r *productRepository) AdjustQuantity(ctx context.Context, id string, delta int) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var quantity int
	err := r.q.QueryRowContext(ctx, `
		UPDATE products
		SET quantity = quantity::bigint + $2::bigint
		WHERE id = $1
		  AND quantity::bigint + $2::bigint BETWEEN 0 AND $3::bigint
		RETURNING quantity
	`, id, int64(delta), int64(domain.MaxQuantity)).Scan(&quantity)
	if err == nil {
		return quantity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("adjust product quantity: %w", err)
	}

	if _, getErr := r.Get(ctx, id); getErr != nil {
		return 0, getErr
	}
	if delta > 0 {
		return 0, domain.ErrQuantityTooLarge
	}
	return 0, domain.ErrInsufficientStock
}

func (r *productRepository) AppendMovement(ctx context.Context, movement domain.StockMovement) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if movement.ID == "" {
		movement.ID = uuid.NewString()
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = nowUTC()
	}

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, order_id, user_id, delta, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		movement.ID, movement.ProductID, movement.OrderID, movement.UserID,
		movement.Delta, string(movement.Reason), movement.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert stock movement: %w", err)
	}
	return nil
}

func (r *productRepository) ListMovements(ctx context.Context, productID string) ([]domain.StockMovement, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, product_id, order_id, user_id, delta, reason, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at ASC, id ASC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	defer rows.Close()

	out := make([]domain.StockMovement, 0)
	for rows.Next() {
		var (
			m      domain.StockMovement
			reason string
		)
		if err := rows.Scan(&m.ID, &m.ProductID, &m.OrderID, &m.UserID, &m.Delta, &reason, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stock movement: %w", err)
		}
		m.Reason = domain.StockReason(reason)
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock movements: %w", err)
	}
	return out, nil
}

type cartRepository struct {
	q queryer
}

func (r *cartRepository) RemoveLine(ctx context.Context, buyerID, productID string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_lines
		WHERE buyer_id = $1 AND product_id = $2
	`, buyerID, productID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cart rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrCartLineNotFound
	}
	return nil
}

var (
	_ domain.ProductRepository = (*productRepository)(nil)
	_ domain.CartRepository    = (*cartRepository)(nil)
)
