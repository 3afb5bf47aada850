package calculator

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mmynk/settleup/internal/money"
)

var (
	// ErrInvalidPolicy is returned when a split policy cannot be applied to
	// the given participants and total.
	ErrInvalidPolicy = errors.New("invalid split policy")

	// ErrSplitMismatch is returned when exact amounts do not add up to the
	// expense total. It wraps ErrInvalidPolicy.
	ErrSplitMismatch = fmt.Errorf("%w: amounts must sum to the total", ErrInvalidPolicy)
)

var hundred = decimal.NewFromInt(100)

// SplitKind names a split policy variant.
type SplitKind string

const (
	SplitEqual      SplitKind = "equal"
	SplitPercentage SplitKind = "percentage"
	SplitExact      SplitKind = "exact"
	SplitShares     SplitKind = "shares"
)

// ParseSplitKind accepts the wire names of the split kinds.
func ParseSplitKind(s string) (SplitKind, error) {
	switch k := SplitKind(s); k {
	case SplitEqual, SplitPercentage, SplitExact, SplitShares:
		return k, nil
	case "":
		return SplitEqual, nil
	default:
		return "", fmt.Errorf("%w: unknown split kind %q", ErrInvalidPolicy, s)
	}
}

// SplitPolicy is a closed set of rules for dividing a total. The only
// implementations are EqualSplit, PercentageSplit, ExactSplit and
// SharesSplit; Compute switches over them exhaustively.
type SplitPolicy interface {
	Kind() SplitKind
	// Weights returns the per-member parameters in their persisted string
	// form. Equal splits have none.
	Weights() map[string]string
	sealed()
}

// EqualSplit divides the total evenly.
type EqualSplit struct{}

// PercentageSplit divides the total by percentages summing to 100.
type PercentageSplit struct {
	percents map[string]decimal.Decimal
}

// ExactSplit assigns each participant an explicit amount.
type ExactSplit struct {
	amounts map[string]money.Money
}

// SharesSplit divides the total proportionally to integer share counts.
type SharesSplit struct {
	shares map[string]int64
}

func (EqualSplit) Kind() SplitKind      { return SplitEqual }
func (PercentageSplit) Kind() SplitKind { return SplitPercentage }
func (ExactSplit) Kind() SplitKind      { return SplitExact }
func (SharesSplit) Kind() SplitKind     { return SplitShares }

func (EqualSplit) sealed()      {}
func (PercentageSplit) sealed() {}
func (ExactSplit) sealed()      {}
func (SharesSplit) sealed()     {}

func (EqualSplit) Weights() map[string]string { return nil }

func (p PercentageSplit) Weights() map[string]string {
	out := make(map[string]string, len(p.percents))
	for m, w := range p.percents {
		out[m] = w.String()
	}
	return out
}

func (p ExactSplit) Weights() map[string]string {
	out := make(map[string]string, len(p.amounts))
	for m, a := range p.amounts {
		out[m] = strconv.FormatInt(int64(a), 10)
	}
	return out
}

func (p SharesSplit) Weights() map[string]string {
	out := make(map[string]string, len(p.shares))
	for m, s := range p.shares {
		out[m] = strconv.FormatInt(s, 10)
	}
	return out
}

// NewPercentageSplit validates that every percentage is positive and that
// they sum to exactly 100.
func NewPercentageSplit(percents map[string]decimal.Decimal) (PercentageSplit, error) {
	if len(percents) == 0 {
		return PercentageSplit{}, fmt.Errorf("%w: percentages required", ErrInvalidPolicy)
	}
	sum := decimal.Zero
	copied := make(map[string]decimal.Decimal, len(percents))
	for m, w := range percents {
		if !w.IsPositive() {
			return PercentageSplit{}, fmt.Errorf("%w: percentage for %s must be positive, got %s", ErrInvalidPolicy, m, w)
		}
		sum = sum.Add(w)
		copied[m] = w
	}
	if !sum.Equal(hundred) {
		return PercentageSplit{}, fmt.Errorf("%w: percentages must sum to 100, got %s", ErrInvalidPolicy, sum)
	}
	return PercentageSplit{percents: copied}, nil
}

// NewExactSplit validates that every amount is positive. Whether they sum to
// the total is checked by Compute, which knows the total.
func NewExactSplit(amounts map[string]money.Money) (ExactSplit, error) {
	if len(amounts) == 0 {
		return ExactSplit{}, fmt.Errorf("%w: exact amounts required", ErrInvalidPolicy)
	}
	copied := make(map[string]money.Money, len(amounts))
	for m, a := range amounts {
		if !a.IsPositive() {
			return ExactSplit{}, fmt.Errorf("%w: amount for %s must be positive, got %d", ErrInvalidPolicy, m, a)
		}
		copied[m] = a
	}
	return ExactSplit{amounts: copied}, nil
}

// NewSharesSplit validates that every share count is positive.
func NewSharesSplit(shares map[string]int64) (SharesSplit, error) {
	if len(shares) == 0 {
		return SharesSplit{}, fmt.Errorf("%w: shares required", ErrInvalidPolicy)
	}
	copied := make(map[string]int64, len(shares))
	for m, s := range shares {
		if s <= 0 {
			return SharesSplit{}, fmt.Errorf("%w: shares for %s must be positive, got %d", ErrInvalidPolicy, m, s)
		}
		copied[m] = s
	}
	return SharesSplit{shares: copied}, nil
}

// PolicyFromWeights rebuilds a policy from its kind and string weights, the
// inverse of SplitPolicy.Weights.
func PolicyFromWeights(kind SplitKind, weights map[string]string) (SplitPolicy, error) {
	switch kind {
	case SplitEqual:
		return EqualSplit{}, nil
	case SplitPercentage:
		percents := make(map[string]decimal.Decimal, len(weights))
		for m, w := range weights {
			d, err := decimal.NewFromString(w)
			if err != nil {
				return nil, fmt.Errorf("%w: percentage for %s: %q", ErrInvalidPolicy, m, w)
			}
			percents[m] = d
		}
		return NewPercentageSplit(percents)
	case SplitExact:
		amounts := make(map[string]money.Money, len(weights))
		for m, w := range weights {
			n, err := strconv.ParseInt(w, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: amount for %s: %q", ErrInvalidPolicy, m, w)
			}
			amounts[m] = money.Money(n)
		}
		return NewExactSplit(amounts)
	case SplitShares:
		shares := make(map[string]int64, len(weights))
		for m, w := range weights {
			n, err := strconv.ParseInt(w, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: shares for %s: %q", ErrInvalidPolicy, m, w)
			}
			shares[m] = n
		}
		return NewSharesSplit(shares)
	default:
		return nil, fmt.Errorf("%w: unknown split kind %q", ErrInvalidPolicy, kind)
	}
}
