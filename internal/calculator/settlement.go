package calculator

import (
	"errors"
	"fmt"
	"maps"

	"github.com/mmynk/settleup/internal/money"
)

// ErrUnbalancedLedger is returned when balances handed to the planner do not
// sum to zero. It indicates corrupted ledger state and is never corrected.
var ErrUnbalancedLedger = errors.New("unbalanced ledger")

// Transfer is a payment from a debtor to a creditor.
type Transfer struct {
	From   string // debtor, negative balance
	To     string // creditor, positive balance
	Amount money.Money
}

type party struct {
	id     string
	amount uint64 // magnitude still to settle; a debt can be 2^63
}

// Plan computes transfers that bring every balance to zero.
//
// Greedy: repeatedly match the largest creditor with the largest debtor
// (ties by member ID), move the smaller of the two amounts and drop whoever
// reaches zero. Each step zeroes at least one party, so a group of n members
// settles in at most n-1 transfers.
func Plan(balances map[string]money.Money) ([]Transfer, error) {
	if sum := money.ExactSum(maps.Values(balances)); sum.Sign() != 0 {
		return nil, fmt.Errorf("%w: balances sum to %s", ErrUnbalancedLedger, sum)
	}

	var creditors, debtors []party
	for id, b := range balances {
		switch {
		case b.IsPositive():
			creditors = append(creditors, party{id: id, amount: uint64(b)})
		case b.IsNegative():
			debtors = append(debtors, party{id: id, amount: uint64(-(b + 1)) + 1})
		}
	}

	var transfers []Transfer
	for len(creditors) > 0 && len(debtors) > 0 {
		ci, di := largest(creditors), largest(debtors)
		c, d := &creditors[ci], &debtors[di]

		// Never more than the creditor's amount, which fits in int64.
		amount := min(c.amount, d.amount)
		transfers = append(transfers, Transfer{From: d.id, To: c.id, Amount: money.Money(amount)})

		c.amount -= amount
		d.amount -= amount
		if c.amount == 0 {
			creditors = remove(creditors, ci)
		}
		if d.amount == 0 {
			debtors = remove(debtors, di)
		}
	}
	return transfers, nil
}

func largest(parties []party) int {
	best := 0
	for i := 1; i < len(parties); i++ {
		a, b := parties[i], parties[best]
		if a.amount > b.amount || (a.amount == b.amount && a.id < b.id) {
			best = i
		}
	}
	return best
}

func remove(parties []party, i int) []party {
	return append(parties[:i], parties[i+1:]...)
}
