// Package calculator divides expense totals among participants and plans
// settlements. It is pure: no storage, no clocks, no locks.
package calculator

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/mmynk/settleup/internal/money"
)

// Share is one participant's portion of an expense.
type Share struct {
	MemberID string
	Amount   money.Money
}

// Shares is an ordered split result, in participant order.
type Shares []Share

// Map returns the shares keyed by member.
func (s Shares) Map() map[string]money.Money {
	out := make(map[string]money.Money, len(s))
	for _, sh := range s {
		out[sh.MemberID] = sh.Amount
	}
	return out
}

// Total returns the sum of all shares.
func (s Shares) Total() (money.Money, error) {
	var total money.Money
	for _, sh := range s {
		var err error
		if total, err = total.Add(sh.Amount); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Compute divides total among participants according to policy. The returned
// shares are in participant order and always sum exactly to total.
func Compute(total money.Money, policy SplitPolicy, participants []string) (Shares, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("%w: must have at least one participant", ErrInvalidPolicy)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total must be positive, got %d", ErrInvalidPolicy, total)
	}
	seen := make(map[string]bool, len(participants))
	for _, p := range participants {
		if p == "" {
			return nil, fmt.Errorf("%w: empty participant id", ErrInvalidPolicy)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidPolicy, p)
		}
		seen[p] = true
	}

	switch p := policy.(type) {
	case EqualSplit:
		return splitEqual(total, participants), nil
	case PercentageSplit:
		if err := checkKeys(p.Weights(), seen); err != nil {
			return nil, err
		}
		weights := make([]*big.Rat, len(participants))
		for i, m := range participants {
			weights[i] = new(big.Rat).Quo(p.percents[m].Rat(), big.NewRat(100, 1))
		}
		return splitWeighted(total, participants, weights)
	case SharesSplit:
		if err := checkKeys(p.Weights(), seen); err != nil {
			return nil, err
		}
		var sum int64
		for _, m := range participants {
			if p.shares[m] > (1<<62)-sum {
				return nil, fmt.Errorf("%w: share counts too large", ErrInvalidPolicy)
			}
			sum += p.shares[m]
		}
		weights := make([]*big.Rat, len(participants))
		for i, m := range participants {
			weights[i] = big.NewRat(p.shares[m], sum)
		}
		return splitWeighted(total, participants, weights)
	case ExactSplit:
		if err := checkKeys(p.Weights(), seen); err != nil {
			return nil, err
		}
		shares := make(Shares, len(participants))
		for i, m := range participants {
			shares[i] = Share{MemberID: m, Amount: p.amounts[m]}
		}
		sum, err := shares.Total()
		if err != nil {
			return nil, err
		}
		if sum != total {
			return nil, fmt.Errorf("%w: shares sum to %d, total is %d", ErrSplitMismatch, sum, total)
		}
		return shares, nil
	case nil:
		return nil, fmt.Errorf("%w: policy required", ErrInvalidPolicy)
	default:
		return nil, fmt.Errorf("%w: unsupported policy %T", ErrInvalidPolicy, policy)
	}
}

// splitEqual gives everyone total/n and hands the remainder out one minor
// unit at a time to the first participants.
func splitEqual(total money.Money, participants []string) Shares {
	n := money.Money(len(participants))
	base, remainder := total/n, total%n

	shares := make(Shares, len(participants))
	for i, m := range participants {
		amount := base
		if money.Money(i) < remainder {
			amount++
		}
		shares[i] = Share{MemberID: m, Amount: amount}
	}
	return shares
}

// splitWeighted rounds each weighted share half-to-even and assigns the
// residual to the participant with the largest weight, first in order on ties.
// When that would take the share below zero, the residual is instead spread
// one minor unit at a time in descending weight order.
func splitWeighted(total money.Money, participants []string, weights []*big.Rat) (Shares, error) {
	shares := make(Shares, len(participants))
	rounded := new(big.Int)
	largest := 0
	for i, m := range participants {
		amount, err := total.MulRat(weights[i], money.HalfEven)
		if err != nil {
			return nil, err
		}
		shares[i] = Share{MemberID: m, Amount: amount}
		rounded.Add(rounded, big.NewInt(int64(amount)))
		if weights[i].Cmp(weights[largest]) > 0 {
			largest = i
		}
	}

	// Each share is off by at most half a unit, so the residual is small.
	residual := money.Money(new(big.Int).Sub(big.NewInt(int64(total)), rounded).Int64())
	if residual >= 0 || shares[largest].Amount+residual >= 0 {
		shares[largest].Amount += residual
		return shares, nil
	}

	order := make([]int, len(participants))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return weights[order[a]].Cmp(weights[order[b]]) > 0
	})
	// The shares sum to more than total > 0, so some share is always positive.
	for residual < 0 {
		for _, i := range order {
			if residual == 0 {
				break
			}
			if shares[i].Amount > 0 {
				shares[i].Amount--
				residual++
			}
		}
	}
	return shares, nil
}

// checkKeys requires the policy's members to match the participant set.
func checkKeys(weights map[string]string, participants map[string]bool) error {
	for m := range weights {
		if !participants[m] {
			return fmt.Errorf("%w: %s has a weight but is not a participant", ErrInvalidPolicy, m)
		}
	}
	for m := range participants {
		if _, ok := weights[m]; !ok {
			return fmt.Errorf("%w: missing weight for participant %s", ErrInvalidPolicy, m)
		}
	}
	return nil
}
