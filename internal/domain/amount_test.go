package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestAddQuantity(t *testing.T) {
	cases := []struct {
		name string
		a, b int
		want int
		err  error
	}{
		{name: "plain", a: 3, b: 4, want: 7},
		{name: "up to max", a: domain.MaxQuantity - 20, b: 20, want: domain.MaxQuantity},
		{name: "past max", a: domain.MaxQuantity, b: 20, err: domain.ErrQuantityTooLarge},
		{name: "int overflow", a: math.MaxInt, b: 20, err: domain.ErrQuantityTooLarge},
		{name: "negative", a: 1, b: -1, err: domain.ErrQuantityInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := domain.AddQuantity(tc.a, tc.b)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v (sum %d)", tc.err, err, got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %d, got %d err=%v", tc.want, got, err)
			}
		})
	}
}

func TestAmountArithmeticOverflow(t *testing.T) {
	if _, err := domain.AddAmount(math.MaxInt64, 1); !errors.Is(err, domain.ErrAmountOverflow) {
		t.Fatalf("expected overflow on add, got %v", err)
	}
	if _, err := domain.MulAmount(100, math.MaxInt); !errors.Is(err, domain.ErrAmountOverflow) {
		t.Fatalf("expected overflow on mul, got %v", err)
	}
	if got, err := domain.MulAmount(100, domain.MaxQuantity); err != nil || got != 100*int64(domain.MaxQuantity) {
		t.Fatalf("unexpected product %d err=%v", got, err)
	}
	if got, err := domain.MulAmount(0, math.MaxInt); err != nil || got != 0 {
		t.Fatalf("expected zero for free line, got %d err=%v", got, err)
	}
	if !errors.Is(domain.ErrAmountOverflow, domain.ErrInvalidArgument) {
		t.Fatal("overflow must be an invalid argument")
	}
}
