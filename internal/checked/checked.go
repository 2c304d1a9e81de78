// Package checked provides overflow-detecting unsigned arithmetic.
// Every function reports overflow as an error wrapping domain.ErrArithmeticOverflow.
package checked

import (
	"math/bits"

	"github.com/transfa/ido-service/internal/domain"
)

// Add returns a + b.
func Add(a, b uint64, what string) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.Overflowf("%s", what)
	}
	return sum, nil
}

// Sub returns a - b. A negative result is reported as overflow.
func Sub(a, b uint64, what string) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, domain.Overflowf("%s", what)
	}
	return diff, nil
}

// Mul returns a * b.
func Mul(a, b uint64, what string) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, domain.Overflowf("%s", what)
	}
	return lo, nil
}

// MulDiv returns floor(a * b / c) using a 128-bit intermediate.
func MulDiv(a, b, c uint64, what string) (uint64, error) {
	if c == 0 {
		return 0, domain.Overflowf("%s: division by zero", what)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 0, domain.Overflowf("%s", what)
	}
	quo, _ := bits.Div64(hi, lo, c)
	return quo, nil
}

// SaturatingSub returns a - b, or zero when b > a.
func SaturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
