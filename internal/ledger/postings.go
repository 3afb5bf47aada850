package ledger

import (
	"fmt"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// ExpensePosting credits the payer with the total and debits each
// participant's share. The payer's own share is netted into one delta.
func ExpensePosting(groupID, expenseID, payerID string, total money.Money, shares calculator.Shares) (models.Posting, error) {
	deltas := []models.Delta{{MemberID: payerID, Amount: total}}
	for _, sh := range shares {
		debit, err := sh.Amount.Neg()
		if err != nil {
			return models.Posting{}, err
		}
		if sh.MemberID == payerID {
			if deltas[0].Amount, err = deltas[0].Amount.Add(debit); err != nil {
				return models.Posting{}, err
			}
			continue
		}
		deltas = append(deltas, models.Delta{MemberID: sh.MemberID, Amount: debit})
	}
	return models.Posting{
		GroupID: groupID,
		Kind:    models.EntryExpense,
		Ref:     expenseID,
		Deltas:  deltas,
	}, nil
}

// SettlementPosting moves t.Amount toward zero for both parties: the debtor
// paying goes up, the creditor being paid goes down.
func SettlementPosting(t models.SettlementTransfer, memo string) (models.Posting, error) {
	switch {
	case t.FromMemberID == "" || t.ToMemberID == "":
		return models.Posting{}, fmt.Errorf("%w: transfer needs both members", ErrInvalidInput)
	case t.FromMemberID == t.ToMemberID:
		return models.Posting{}, fmt.Errorf("%w: transfer from %s to itself", ErrInvalidInput, t.FromMemberID)
	case !t.Amount.IsPositive():
		return models.Posting{}, fmt.Errorf("%w: transfer amount must be positive, got %d", ErrInvalidInput, t.Amount)
	}
	return models.Posting{
		GroupID: t.GroupID,
		Kind:    models.EntrySettlement,
		Ref:     t.ID,
		Memo:    memo,
		Deltas: []models.Delta{
			{MemberID: t.FromMemberID, Amount: t.Amount},
			{MemberID: t.ToMemberID, Amount: -t.Amount},
		},
	}, nil
}

// ReversalPosting negates an expense posting.
func ReversalPosting(original models.Posting, reason string) (models.Posting, error) {
	if original.Kind != models.EntryExpense {
		return models.Posting{}, fmt.Errorf("%w: only expense postings can be reversed, got %s", ErrInvalidInput, original.Kind)
	}
	deltas := make([]models.Delta, len(original.Deltas))
	for i, d := range original.Deltas {
		neg, err := d.Amount.Neg()
		if err != nil {
			return models.Posting{}, err
		}
		deltas[i] = models.Delta{MemberID: d.MemberID, Amount: neg}
	}
	return models.Posting{
		GroupID: original.GroupID,
		Kind:    models.EntryReversal,
		Ref:     original.Ref,
		Memo:    reason,
		Deltas:  deltas,
	}, nil
}
