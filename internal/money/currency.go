package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// ErrInvalidCurrency is returned for codes that are not ISO 4217 currencies.
var ErrInvalidCurrency = errors.New("money: invalid currency")

// ErrInvalidAmount is returned when a decimal string cannot be read as an
// amount in the given currency.
var ErrInvalidAmount = errors.New("money: invalid amount")

// Currency is a validated ISO 4217 code together with its minor-unit scale.
type Currency struct {
	code  string
	scale int
}

// ParseCurrency validates an ISO 4217 code such as "USD" or "eur".
func ParseCurrency(code string) (Currency, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Currency{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return Currency{code: unit.String(), scale: scale}, nil
}

// MustCurrency is like ParseCurrency but panics on error. Intended for
// constants in tests and defaults.
func MustCurrency(code string) Currency {
	c, err := ParseCurrency(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Code returns the upper-case ISO code.
func (c Currency) Code() string { return c.code }

// Scale returns the number of decimal places of one minor unit (2 for USD,
// 0 for JPY).
func (c Currency) Scale() int { return c.scale }

func (c Currency) String() string { return c.code }

// Format renders m as a decimal string in c, e.g. 1234 USD -> "12.34".
func (m Money) Format(c Currency) string {
	return decimal.New(int64(m), -int32(c.scale)).StringFixed(int32(c.scale))
}

// Parse reads a decimal string in c into minor units. Values with more
// precision than the currency allows are rejected rather than rounded.
func Parse(s string, c Currency) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Shift(int32(c.scale))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, c.scale)
	}
	if !minor.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return Money(minor.IntPart()), nil
}
