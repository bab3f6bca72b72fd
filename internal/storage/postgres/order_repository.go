package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const orderSelect = `
	SELECT o.id, o.buyer_id, o.seller_id, o.address_id, o.total_price, o.shipping_fee,
	       o.note, o.cancel_reason, o.refund_reason, o.refund_evidence, o.reject_reason,
	       o.status, o.shipping_date, o.deleted_at, o.version, o.created_at, o.updated_at,
	       p.id, p.method, p.status, p.transaction_id, p.created_at, p.updated_at
	FROM orders o
	LEFT JOIN payments p ON p.order_id = o.id`

type orderRepository struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	evidence, err := encodeEvidence(order.RefundEvidence)
	if err != nil {
		return err
	}

	return inTx(ctx, r.q, func(q queryer) error {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO orders (
				id, buyer_id, seller_id, address_id, total_price, shipping_fee,
				note, cancel_reason, refund_reason, refund_evidence, reject_reason,
				status, shipping_date, deleted_at, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11,$12,$13,$14,$15,$16,$17)
		`,
			order.ID, order.BuyerID, order.SellerID, order.AddressID, order.TotalPrice, order.ShippingFee,
			order.Note, order.CancelReason, order.RefundReason, evidence, order.RejectReason,
			string(order.Status), nullTime(order.ShippingDate), nullTime(order.DeletedAt),
			order.Version, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrDuplicateID
			}
			return fmt.Errorf("insert order: %w", err)
		}

		for _, d := range order.Details {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO order_details (id, order_id, product_id, quantity, price, created_at)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, d.ID, order.ID, d.ProductID, d.Quantity, d.Price, d.CreatedAt.UTC()); err != nil {
				if isUniqueViolation(err) {
					return domain.ErrDuplicateID
				}
				return fmt.Errorf("insert order detail: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.q.QueryRowContext(ctx, orderSelect+` WHERE o.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	details, err := r.loadDetails(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Details = details

	return order, nil
}

func (r *orderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.list(ctx, orderSelect+`
		WHERE o.buyer_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.created_at DESC, o.id DESC
	`, buyerID)
}

func (r *orderRepository) ListBySeller(ctx context.Context, filter domain.SellerOrderFilter) (domain.OrderPage, error) {
	filter = filter.Normalize()

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	where, args := sellerFilterClause(filter)

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o WHERE `+where, args...).Scan(&total); err != nil {
		return domain.OrderPage{}, fmt.Errorf("count seller orders: %w", err)
	}

	pageArgs := append(append([]any(nil), args...), filter.Limit, filter.Offset())
	orders, err := r.list(ctx, fmt.Sprintf(`%s
		WHERE %s
		ORDER BY o.created_at DESC, o.id DESC
		LIMIT $%d OFFSET $%d
	`, orderSelect, where, len(args)+1, len(args)+2), pageArgs...)
	if err != nil {
		return domain.OrderPage{}, err
	}

	return domain.NewOrderPage(filter, total, orders), nil
}

func (r *orderRepository) ListForReport(ctx context.Context, sellerID string, from, to time.Time) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.list(ctx, orderSelect+`
		WHERE o.seller_id = $1
		  AND o.deleted_at IS NULL
		  AND o.created_at >= $2
		  AND o.created_at < $3
		ORDER BY o.created_at ASC, o.id ASC
	`, sellerID, from.UTC(), to.UTC())
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	evidence, err := encodeEvidence(order.RefundEvidence)
	if err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    note = $2,
		    cancel_reason = $3,
		    refund_reason = $4,
		    refund_evidence = $5::jsonb,
		    reject_reason = $6,
		    shipping_date = $7,
		    deleted_at = $8,
		    updated_at = $9,
		    version = version + 1
		WHERE id = $10
		  AND version = $11
	`,
		string(order.Status),
		order.Note,
		order.CancelReason,
		order.RefundReason,
		evidence,
		order.RejectReason,
		nullTime(order.ShippingDate),
		nullTime(order.DeletedAt),
		order.UpdatedAt.UTC(),
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.exists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

// list читает заказы целиком, а позиции догружает после закрытия курсора:
// в транзакции соединение одно.
func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	_ = rows.Close()

	for i := range orders {
		details, err := r.loadDetails(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Details = details
	}

	return orders, nil
}

func (r *orderRepository) loadDetails(ctx context.Context, orderID string) ([]domain.OrderDetail, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price, created_at
		FROM order_details
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order details: %w", err)
	}
	defer rows.Close()

	details := make([]domain.OrderDetail, 0)
	for rows.Next() {
		var d domain.OrderDetail
		if err := rows.Scan(&d.ID, &d.OrderID, &d.ProductID, &d.Quantity, &d.Price, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order detail: %w", err)
		}
		d.CreatedAt = d.CreatedAt.UTC()
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order details: %w", err)
	}

	return details, nil
}

func (r *orderRepository) exists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order        domain.Order
		status       string
		evidence     []byte
		shippingDate sql.NullTime
		deletedAt    sql.NullTime

		paymentID      sql.NullString
		paymentMethod  sql.NullString
		paymentStatus  sql.NullString
		transactionID  sql.NullString
		paymentCreated sql.NullTime
		paymentUpdated sql.NullTime
	)

	if err := row.Scan(
		&order.ID, &order.BuyerID, &order.SellerID, &order.AddressID, &order.TotalPrice, &order.ShippingFee,
		&order.Note, &order.CancelReason, &order.RefundReason, &evidence, &order.RejectReason,
		&status, &shippingDate, &deletedAt, &order.Version, &order.CreatedAt, &order.UpdatedAt,
		&paymentID, &paymentMethod, &paymentStatus, &transactionID, &paymentCreated, &paymentUpdated,
	); err != nil {
		return domain.Order{}, err
	}

	order.Status = domain.OrderStatus(status)
	order.ShippingDate = timePtr(shippingDate)
	order.DeletedAt = timePtr(deletedAt)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &order.RefundEvidence); err != nil {
			return domain.Order{}, fmt.Errorf("decode refund evidence: %w", err)
		}
		if len(order.RefundEvidence) == 0 {
			order.RefundEvidence = nil
		}
	}

	if paymentID.Valid {
		order.Payment = &domain.Payment{
			ID:            paymentID.String,
			OrderID:       order.ID,
			Method:        domain.PaymentMethod(paymentMethod.String),
			Status:        domain.PaymentStatus(paymentStatus.String),
			TransactionID: transactionID.String,
			CreatedAt:     paymentCreated.Time.UTC(),
			UpdatedAt:     paymentUpdated.Time.UTC(),
		}
	}

	return order, nil
}

// sellerFilterClause собирает WHERE очереди продавца; аргументы
// нумеруются по порядку добавления.
func sellerFilterClause(f domain.SellerOrderFilter) (string, []any) {
	args := []any{f.SellerID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds := []string{"o.seller_id = $1", "o.deleted_at IS NULL"}
	if f.Status != "" {
		conds = append(conds, "o.status = "+arg(string(f.Status)))
	}
	if !f.From.IsZero() {
		conds = append(conds, "o.created_at >= "+arg(f.From.UTC()))
	}
	if !f.To.IsZero() {
		conds = append(conds, "o.created_at <= "+arg(f.To.UTC()))
	}

	var addr []string
	if f.Province != "" {
		addr = append(addr, "a.province = "+arg(f.Province))
	}
	if f.District != "" {
		addr = append(addr, "a.district = "+arg(f.District))
	}
	if f.Ward != "" {
		addr = append(addr, "a.ward = "+arg(f.Ward))
	}
	if len(addr) > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM addresses a WHERE a.id = o.address_id AND "+strings.Join(addr, " AND ")+")")
	}

	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		conds = append(conds, `(
			EXISTS (SELECT 1 FROM buyers b WHERE b.id = o.buyer_id AND b.name ILIKE `+p+`)
			OR EXISTS (
				SELECT 1 FROM order_details d
				JOIN products pr ON pr.id = d.product_id
				WHERE d.order_id = o.id AND pr.name ILIKE `+p+`
			)
		)`)
	}

	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func encodeEvidence(evidence []string) (string, error) {
	if evidence == nil {
		evidence = []string{}
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return "", fmt.Errorf("encode refund evidence: %w", err)
	}
	return string(raw), nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
