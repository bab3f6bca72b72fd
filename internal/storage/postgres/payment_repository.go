package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type paymentRepository struct {
	q queryer
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, method, status, transaction_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		payment.ID, payment.OrderID, string(payment.Method), string(payment.Status),
		nullString(payment.TransactionID), payment.CreatedAt.UTC(), payment.UpdatedAt.UTC(),
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.getBy(ctx, "order_id", orderID)
}

func (r *paymentRepository) GetByTransaction(ctx context.Context, transactionID string) (domain.Payment, error) {
	if transactionID == "" {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return r.getBy(ctx, "transaction_id", transactionID)
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE payments
		SET method = $1,
		    status = $2,
		    transaction_id = $3,
		    updated_at = $4
		WHERE id = $5
	`,
		string(payment.Method),
		string(payment.Status),
		nullString(payment.TransactionID),
		payment.UpdatedAt.UTC(),
		payment.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateID
		}
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

// getBy читает оплату по одной из уникальных колонок; column не приходит извне.
func (r *paymentRepository) getBy(ctx context.Context, column, value string) (domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		p             domain.Payment
		method        string
		status        string
		transactionID sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, order_id, method, status, transaction_id, created_at, updated_at
		FROM payments
		WHERE `+column+` = $1
	`, value).Scan(&p.ID, &p.OrderID, &method, &status, &transactionID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}

	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	p.TransactionID = transactionID.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

type paymentEventRepository struct {
	q queryer
}

// Record пишет событие один раз на пару (provider, event_id).
func (r *paymentEventRepository) Record(ctx context.Context, event domain.PaymentEvent) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = nowUTC()
	}

	res, err := r.q.ExecContext(ctx, `
		INSERT INTO payment_events (provider, event_id, payment_id, order_id, payload, processed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (provider, event_id) DO NOTHING
	`, event.Provider, event.EventID, event.PaymentID, event.OrderID, event.Payload, event.ProcessedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("payment event rows affected: %w", err)
	}
	return affected == 1, nil
}

var (
	_ domain.PaymentRepository      = (*paymentRepository)(nil)
	_ domain.PaymentEventRepository = (*paymentEventRepository)(nil)
)
