// Package money provides an integer amount type in currency minor units.
//
// All arithmetic is exact. Operations that would leave the int64 range fail
// with ErrOverflow instead of wrapping.
package money

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"math/big"
)

// ErrOverflow is returned when a result does not fit in an int64.
var ErrOverflow = errors.New("money: amount overflow")

// Money is a signed amount in minor units (cents, pence, ...).
type Money int64

// Rounding selects how MulRat resolves fractional minor units.
type Rounding int

const (
	// HalfEven rounds to the nearest unit, ties to the even neighbour.
	HalfEven Rounding = iota
	// HalfUp rounds to the nearest unit, ties away from zero.
	HalfUp
	// Down truncates toward zero.
	Down
)

// Zero is the zero amount.
const Zero Money = 0

var (
	maxInt = big.NewInt(math.MaxInt64)
	minInt = big.NewInt(math.MinInt64)
)

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	s := m + other
	if (other > 0 && s < m) || (other < 0 && s > m) {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, m, other)
	}
	return s, nil
}

// Sub returns m - other.
func (m Money) Sub(other Money) (Money, error) {
	d := m - other
	if (other > 0 && d > m) || (other < 0 && d < m) {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, m, other)
	}
	return d, nil
}

// Neg returns -m.
func (m Money) Neg() (Money, error) {
	if m == math.MinInt64 {
		return 0, fmt.Errorf("%w: -(%d)", ErrOverflow, m)
	}
	return -m, nil
}

// Abs returns |m|.
func (m Money) Abs() (Money, error) {
	if m < 0 {
		return m.Neg()
	}
	return m, nil
}

// MulRat returns m × r rounded to a whole minor unit.
func (m Money) MulRat(r *big.Rat, mode Rounding) (Money, error) {
	num := new(big.Int).Mul(big.NewInt(int64(m)), r.Num())
	den := r.Denom()

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		switch mode {
		case HalfEven, HalfUp:
			// compare 2|rem| against den
			twice := new(big.Int).Abs(rem)
			twice.Lsh(twice, 1)
			c := twice.Cmp(den)
			if c > 0 || (c == 0 && (mode == HalfUp || q.Bit(0) == 1)) {
				if num.Sign() < 0 {
					q.Sub(q, big.NewInt(1))
				} else {
					q.Add(q, big.NewInt(1))
				}
			}
		case Down:
		}
	}

	if q.Cmp(maxInt) > 0 || q.Cmp(minInt) < 0 {
		return 0, fmt.Errorf("%w: %d × %s", ErrOverflow, m, r.RatString())
	}
	return Money(q.Int64()), nil
}

// Cmp compares m and other, returning -1, 0 or +1.
func (m Money) Cmp(other Money) int {
	switch {
	case m < other:
		return -1
	case m > other:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether m is zero.
func (m Money) IsZero() bool { return m == 0 }

// IsPositive reports whether m is greater than zero.
func (m Money) IsPositive() bool { return m > 0 }

// IsNegative reports whether m is less than zero.
func (m Money) IsNegative() bool { return m < 0 }

// Min returns the smaller of a and b.
func Min(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

// Sum adds all amounts, failing on the first overflow.
func Sum(amounts ...Money) (Money, error) {
	var total Money
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ExactSum adds amounts without an int64 intermediate, so the result does not
// depend on the order amounts are visited in.
func ExactSum(amounts iter.Seq[Money]) *big.Int {
	total := new(big.Int)
	var v big.Int
	for a := range amounts {
		total.Add(total, v.SetInt64(int64(a)))
	}
	return total
}
