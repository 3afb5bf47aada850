package models

import (
	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/money"
)

// Expense is a payment made by one member on behalf of the participants.
// It is immutable once posted.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group whose ledger this expense was posted to.
	GroupID string

	// PayerID is the member who paid the full total.
	PayerID string

	// Title is a short label (e.g., "Groceries").
	Title string

	// Description is optional free text.
	Description string

	// Total is the amount paid, always positive.
	Total money.Money

	// Currency is the group's ISO 4217 code at posting time.
	Currency string

	// Split is the policy kind used to compute Shares.
	Split calculator.SplitKind

	// Shares are the computed portions in participant order.
	Shares []ExpenseShare

	// PostingID is the log entry that applied this expense to the ledger.
	PostingID string

	// CreatedBy is the actor that recorded the expense, if known.
	CreatedBy string

	// CreatedAt is the Unix timestamp in milliseconds when the expense was recorded.
	CreatedAt int64
}

// ExpenseShare is one participant's computed share and the policy weight that
// produced it.
type ExpenseShare struct {
	MemberID string
	Amount   money.Money

	// Weight is the persisted policy parameter (percentage, share count or
	// exact amount); empty for equal splits.
	Weight string
}

// Participants returns the participant IDs in order.
func (e *Expense) Participants() []string {
	ids := make([]string, len(e.Shares))
	for i, s := range e.Shares {
		ids[i] = s.MemberID
	}
	return ids
}

// Policy rebuilds the split policy from the stored weights.
func (e *Expense) Policy() (calculator.SplitPolicy, error) {
	weights := make(map[string]string, len(e.Shares))
	for _, s := range e.Shares {
		if s.Weight != "" {
			weights[s.MemberID] = s.Weight
		}
	}
	return calculator.PolicyFromWeights(e.Split, weights)
}

// ExpenseStatus says how much of an expense its participants have paid back
// to the payer.
type ExpenseStatus string

const (
	ExpensePending          ExpenseStatus = "PENDING"
	ExpensePartiallySettled ExpenseStatus = "PARTIALLY_SETTLED"
	ExpenseSettled          ExpenseStatus = "SETTLED"
)

// ExpenseSummary is an expense with state derived from the log.
type ExpenseSummary struct {
	Expense

	// Reversed is true once a reversal posting referencing this expense exists.
	Reversed bool

	// Settled is what each participant has paid the payer toward this expense
	// through settlements referencing it. Nil when nothing was settled.
	Settled map[string]money.Money
}

// Outstanding returns what memberID still owes the payer for this expense.
// The payer's own share is never outstanding.
func (s *ExpenseSummary) Outstanding(memberID string) money.Money {
	if memberID == s.PayerID {
		return 0
	}
	for _, sh := range s.Shares {
		if sh.MemberID == memberID {
			if left := sh.Amount - s.Settled[memberID]; left > 0 {
				return left
			}
			return 0
		}
	}
	return 0
}

// Paid reports whether memberID owes nothing more for this expense.
func (s *ExpenseSummary) Paid(memberID string) bool {
	return s.Outstanding(memberID) == 0
}

// Status summarizes the participants' settlements.
func (s *ExpenseSummary) Status() ExpenseStatus {
	var owing, paidSome bool
	for _, sh := range s.Shares {
		if sh.MemberID == s.PayerID {
			continue
		}
		if s.Settled[sh.MemberID] > 0 {
			paidSome = true
		}
		if s.Outstanding(sh.MemberID) > 0 {
			owing = true
		}
	}
	switch {
	case !owing:
		return ExpenseSettled
	case paidSome:
		return ExpensePartiallySettled
	default:
		return ExpensePending
	}
}
