package domain

import "context"

// CartLine — строка корзины покупателя.
type CartLine struct {
	BuyerID   string `json:"userId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Catalog — справочные данные, которыми хранилище наполняется при старте:
// покупатели, продавцы, адреса, товары и корзины.
type Catalog struct {
	Buyers    []Buyer    `json:"buyers"`
	Sellers   []Seller   `json:"sellers"`
	Addresses []Address  `json:"addresses"`
	Products  []Product  `json:"products"`
	CartLines []CartLine `json:"cartLines"`
}

// CatalogSeeder загружает Catalog в хранилище. Повторная загрузка
// перезаписывает записи с теми же id.
type CatalogSeeder interface {
	SeedCatalog(ctx context.Context, catalog Catalog) error
}
