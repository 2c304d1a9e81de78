package checked

import (
	"errors"
	"math"
	"testing"

	"github.com/transfa/ido-service/internal/domain"
)

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name     string
		fn       func() (uint64, error)
		expected uint64
		overflow bool
	}{
		{"add", func() (uint64, error) { return Add(2, 3, "x") }, 5, false},
		{"add overflow", func() (uint64, error) { return Add(math.MaxUint64, 1, "x") }, 0, true},
		{"sub", func() (uint64, error) { return Sub(5, 3, "x") }, 2, false},
		{"sub underflow", func() (uint64, error) { return Sub(3, 5, "x") }, 0, true},
		{"mul", func() (uint64, error) { return Mul(1<<31, 1<<31, "x") }, 1 << 62, false},
		{"mul overflow", func() (uint64, error) { return Mul(1<<32, 1<<32, "x") }, 0, true},
		{"muldiv wide intermediate", func() (uint64, error) { return MulDiv(math.MaxUint64, 100, 100, "x") }, math.MaxUint64, false},
		{"muldiv floors", func() (uint64, error) { return MulDiv(1000, 20, 100, "x") }, 200, false},
		{"muldiv overflow", func() (uint64, error) { return MulDiv(math.MaxUint64, 2, 1, "x") }, 0, true},
		{"muldiv zero divisor", func() (uint64, error) { return MulDiv(1, 1, 0, "x") }, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn()
			if tc.overflow {
				if !errors.Is(err, domain.ErrArithmeticOverflow) {
					t.Fatalf("expected overflow error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Fatalf("expected %d, got %d", tc.expected, got)
			}
		})
	}
}

func TestSaturatingSub(t *testing.T) {
	if got := SaturatingSub(10, 4); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}
	if got := SaturatingSub(4, 10); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
