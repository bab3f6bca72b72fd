package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// SeedCatalog загружает справочные данные одной транзакцией
// (upsert по первичному ключу).
func (s *Store) SeedCatalog(ctx context.Context, catalog domain.Catalog) error {
	return inTx(ctx, s.db, func(q queryer) error {
		for _, b := range catalog.Buyers {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO buyers (id, name, email) VALUES ($1,$2,$3)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
			`, b.ID, b.Name, b.Email); err != nil {
				return fmt.Errorf("seed buyer %s: %w", b.ID, err)
			}
		}
		for _, sl := range catalog.Sellers {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO sellers (id, user_id, name) VALUES ($1,$2,$3)
				ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, name = EXCLUDED.name
			`, sl.ID, sl.UserID, sl.Name); err != nil {
				return fmt.Errorf("seed seller %s: %w", sl.ID, err)
			}
		}
		for _, a := range catalog.Addresses {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO addresses (id, user_id, recipient_name, phone, province, district, ward, street)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
				ON CONFLICT (id) DO UPDATE
				SET user_id = EXCLUDED.user_id,
				    recipient_name = EXCLUDED.recipient_name,
				    phone = EXCLUDED.phone,
				    province = EXCLUDED.province,
				    district = EXCLUDED.district,
				    ward = EXCLUDED.ward,
				    street = EXCLUDED.street
			`, a.ID, a.UserID, a.RecipientName, a.Phone, a.Province, a.District, a.Ward, a.Street); err != nil {
				return fmt.Errorf("seed address %s: %w", a.ID, err)
			}
		}
		for _, p := range catalog.Products {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO products (id, seller_id, name, price, quantity) VALUES ($1,$2,$3,$4,$5)
				ON CONFLICT (id) DO UPDATE
				SET seller_id = EXCLUDED.seller_id,
				    name = EXCLUDED.name,
				    price = EXCLUDED.price,
				    quantity = EXCLUDED.quantity
			`, p.ID, p.SellerID, p.Name, p.Price, p.Quantity); err != nil {
				return fmt.Errorf("seed product %s: %w", p.ID, err)
			}
		}
		for _, line := range catalog.CartLines {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO cart_lines (buyer_id, product_id, quantity) VALUES ($1,$2,$3)
				ON CONFLICT (buyer_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
			`, line.BuyerID, line.ProductID, line.Quantity); err != nil {
				return fmt.Errorf("seed cart line %s/%s: %w", line.BuyerID, line.ProductID, err)
			}
		}
		return nil
	})
}

var _ domain.CatalogSeeder = (*Store)(nil)
