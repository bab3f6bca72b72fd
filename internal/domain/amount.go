package domain

import "math"

// MaxQuantity — наибольшее количество товара в позиции и на складе.
// Совпадает с диапазоном колонок INTEGER в PostgreSQL.
const MaxQuantity = math.MaxInt32

// AddQuantity складывает количества и отказывает, если сумма выходит
// за MaxQuantity.
func AddQuantity(a, b int) (int, error) {
	if a < 0 || b < 0 {
		return 0, ErrQuantityInvalid
	}
	if a > MaxQuantity-b {
		return 0, ErrQuantityTooLarge
	}
	return a + b, nil
}

// AddAmount складывает неотрицательные денежные суммы без переполнения int64.
func AddAmount(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrAmountOverflow
	}
	if a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

// MulAmount умножает цену на количество без переполнения int64.
func MulAmount(price int64, quantity int) (int64, error) {
	if price < 0 || quantity < 0 {
		return 0, ErrAmountOverflow
	}
	if price == 0 || quantity == 0 {
		return 0, nil
	}
	if price > math.MaxInt64/int64(quantity) {
		return 0, ErrAmountOverflow
	}
	return price * int64(quantity), nil
}
