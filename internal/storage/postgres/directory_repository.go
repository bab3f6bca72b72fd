package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type directoryRepository struct {
	q queryer
}

func (r *directoryRepository) GetBuyer(ctx context.Context, id string) (domain.Buyer, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var b domain.Buyer
	err := r.q.QueryRowContext(ctx, `SELECT id, name, email FROM buyers WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Email)
	return b, notFound(err, domain.ErrBuyerNotFound, "select buyer")
}

func (r *directoryRepository) GetAddress(ctx context.Context, id string) (domain.Address, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var a domain.Address
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, recipient_name, phone, province, district, ward, street
		FROM addresses
		WHERE id = $1
	`, id).Scan(&a.ID, &a.UserID, &a.RecipientName, &a.Phone, &a.Province, &a.District, &a.Ward, &a.Street)
	return a, notFound(err, domain.ErrAddressNotFound, "select address")
}

func (r *directoryRepository) GetSeller(ctx context.Context, id string) (domain.Seller, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var s domain.Seller
	err := r.q.QueryRowContext(ctx, `SELECT id, user_id, name FROM sellers WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.Name)
	return s, notFound(err, domain.ErrSellerNotFound, "select seller")
}

// notFound переводит sql.ErrNoRows в доменную ошибку.
func notFound(err, sentinel error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return sentinel
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func nowUTC() time.Time { return time.Now().UTC() }

var _ domain.DirectoryRepository = (*directoryRepository)(nil)
