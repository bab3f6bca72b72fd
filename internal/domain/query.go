package domain

import (
	"math"
	"time"
)

const (
	DefaultPageLimit = 15
	MaxPageLimit     = 100
	// MaxPageOffset — наибольшее допустимое смещение страницы.
	MaxPageOffset = math.MaxInt32
)

// SellerOrderFilter — фильтры очереди заказов продавца.
type SellerOrderFilter struct {
	SellerID string
	Status   OrderStatus
	// Search ищет по имени покупателя и названиям товаров без учёта регистра.
	Search   string
	From     time.Time
	To       time.Time
	Province string
	District string
	Ward     string
	Page     int
	Limit    int
}

// Normalize подставляет значения пагинации по умолчанию и продлевает
// конечную дату до конца дня.
func (f SellerOrderFilter) Normalize() SellerOrderFilter {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	if !f.To.IsZero() {
		y, m, d := f.To.Date()
		f.To = time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), f.To.Location())
	}
	return f
}

// Validate проверяет, что страница нормализованного фильтра адресуема.
func (f SellerOrderFilter) Validate() error {
	if f.Page > 1 && f.Limit > 0 && f.Page-1 > MaxPageOffset/f.Limit {
		return ErrPageOutOfRange
	}
	return nil
}

// Offset — число пропускаемых записей, не больше MaxPageOffset.
func (f SellerOrderFilter) Offset() int {
	if f.Page <= 1 || f.Limit <= 0 {
		return 0
	}
	if f.Page-1 > MaxPageOffset/f.Limit {
		return MaxPageOffset
	}
	return (f.Page - 1) * f.Limit
}

// OrderPage — страница очереди заказов.
type OrderPage struct {
	First int     `json:"first"`
	Last  int     `json:"last"`
	Limit int     `json:"limit"`
	Total int     `json:"total"`
	Data  []Order `json:"data"`
}

// NewOrderPage собирает страницу по нормализованному фильтру.
func NewOrderPage(filter SellerOrderFilter, total int, data []Order) OrderPage {
	if data == nil {
		data = []Order{}
	}
	page := OrderPage{Limit: filter.Limit, Total: total, Data: data}
	if len(data) > 0 {
		page.First = filter.Offset() + 1
		page.Last = filter.Offset() + len(data)
	}
	return page
}
