package inventory

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Service выполняет складские операции продавца в собственной транзакции.
type Service struct {
	tx       domain.Transactor
	adjuster *Adjuster
	logger   *log.Entry
}

// NewService создаёт складской сервис.
func NewService(tx domain.Transactor, adjuster *Adjuster) *Service {
	if adjuster == nil {
		adjuster = NewAdjuster()
	}
	return &Service{
		tx:       tx,
		adjuster: adjuster,
		logger:   adjuster.logger,
	}
}

// Restock пополняет остаток товара. Если sellerID задан, товар должен
// принадлежать этому продавцу.
func (s *Service) Restock(ctx context.Context, sellerID, userID, productID string, quantity int) (domain.Product, error) {
	var product domain.Product
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		current, err := tx.Products().Get(ctx, productID)
		if err != nil {
			return err
		}
		if sellerID != "" && current.SellerID != sellerID {
			return domain.ErrProductSellerMismatch
		}
		product, err = s.adjuster.Restock(ctx, tx.Products(), productID, userID, quantity)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": productID,
		"added":      quantity,
		"quantity":   product.Quantity,
	}).Info("product restocked")
	return product, nil
}
