package domain

import "time"

// Product — часть товара, нужная для цен и остатков.
type Product struct {
	ID       string `json:"id"`
	SellerID string `json:"sellerId"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

// StockReason — причина движения остатка.
type StockReason string

const (
	StockReasonReserve StockReason = "reserve"
	StockReasonRelease StockReason = "release"
	StockReasonRestock StockReason = "restock"
)

// StockMovement — строка журнала движения остатков.
type StockMovement struct {
	ID        string      `json:"id"`
	ProductID string      `json:"productId"`
	OrderID   string      `json:"orderId,omitempty"`
	UserID    string      `json:"userId,omitempty"`
	Delta     int         `json:"delta"`
	Reason    StockReason `json:"reason"`
	CreatedAt time.Time   `json:"createdAt"`
}
