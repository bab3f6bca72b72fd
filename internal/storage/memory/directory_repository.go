package memory

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type directoryRepository struct {
	v *view
}

func (r *directoryRepository) GetBuyer(_ context.Context, id string) (domain.Buyer, error) {
	var out domain.Buyer
	err := r.v.read(func(st *state) error {
		b, ok := st.buyers[id]
		if !ok {
			return domain.ErrBuyerNotFound
		}
		out = b
		return nil
	})
	return out, err
}

func (r *directoryRepository) GetAddress(_ context.Context, id string) (domain.Address, error) {
	var out domain.Address
	err := r.v.read(func(st *state) error {
		a, ok := st.addresses[id]
		if !ok {
			return domain.ErrAddressNotFound
		}
		out = a
		return nil
	})
	return out, err
}

func (r *directoryRepository) GetSeller(_ context.Context, id string) (domain.Seller, error) {
	var out domain.Seller
	err := r.v.read(func(st *state) error {
		s, ok := st.sellers[id]
		if !ok {
			return domain.ErrSellerNotFound
		}
		out = s
		return nil
	})
	return out, err
}

type cartRepository struct {
	v *view
}

func (r *cartRepository) RemoveLine(_ context.Context, buyerID, productID string) error {
	return r.v.write(func(st *state) error {
		lines, ok := st.carts[buyerID]
		if !ok {
			return domain.ErrCartLineNotFound
		}
		if _, ok := lines[productID]; !ok {
			return domain.ErrCartLineNotFound
		}
		delete(lines, productID)
		return nil
	})
}

var (
	_ domain.DirectoryRepository = (*directoryRepository)(nil)
	_ domain.CartRepository      = (*cartRepository)(nil)
)
