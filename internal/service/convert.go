package service

import (
	"sort"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/pkg/api"
)

func toAPIAmount(m money.Money, currency string) api.Amount {
	return api.Amount{MinorUnits: int64(m), Currency: currency}
}

func toAPIGroup(g *models.Group) api.Group {
	members := make([]api.Member, len(g.Members))
	for i, m := range g.Members {
		members[i] = api.Member{ID: m.ID, Name: m.Name}
	}
	return api.Group{
		ID:        g.ID,
		Name:      g.Name,
		Currency:  g.Currency,
		Members:   members,
		CreatedAt: g.CreatedAt,
	}
}

func toModelMembers(members []api.Member) []models.Member {
	out := make([]models.Member, len(members))
	for i, m := range members {
		out[i] = models.Member{ID: m.ID, Name: m.Name}
	}
	return out
}

func toAPIExpense(s *models.ExpenseSummary) api.Expense {
	shares := make([]api.Share, len(s.Shares))
	for i, sh := range s.Shares {
		shares[i] = api.Share{
			MemberID: sh.MemberID,
			Amount:   toAPIAmount(sh.Amount, s.Currency),
			Weight:   sh.Weight,
			Paid:     s.Paid(sh.MemberID),
		}
	}
	return api.Expense{
		ID:          s.ID,
		GroupID:     s.GroupID,
		PayerID:     s.PayerID,
		Title:       s.Title,
		Description: s.Description,
		Total:       toAPIAmount(s.Total, s.Currency),
		Split:       string(s.Split),
		Shares:      shares,
		PostingID:   s.PostingID,
		CreatedBy:   s.CreatedBy,
		CreatedAt:   s.CreatedAt,
		Reversed:    s.Reversed,
		Status:      string(s.Status()),
	}
}

func toAPIShares(shares calculator.Shares, policy calculator.SplitPolicy, currency string) []api.Share {
	weights := policy.Weights()
	out := make([]api.Share, len(shares))
	for i, sh := range shares {
		out[i] = api.Share{
			MemberID: sh.MemberID,
			Amount:   toAPIAmount(sh.Amount, currency),
			Weight:   weights[sh.MemberID],
		}
	}
	return out
}

func toAPIEntry(e *models.LogEntry, currency string) api.Entry {
	deltas := make([]api.Delta, len(e.Posting.Deltas))
	for i, d := range e.Posting.Deltas {
		deltas[i] = api.Delta{MemberID: d.MemberID, Amount: toAPIAmount(d.Amount, currency)}
	}
	return api.Entry{
		Seq:       e.Seq,
		PostingID: e.Posting.ID,
		Kind:      string(e.Posting.Kind),
		Ref:       e.Posting.Ref,
		Memo:      e.Posting.Memo,
		Actor:     e.Actor,
		CreatedAt: e.CreatedAt,
		Deltas:    deltas,
	}
}

func toAPITransfer(t models.SettlementTransfer, currency string) api.Transfer {
	return api.Transfer{
		ID:           t.ID,
		FromMemberID: t.FromMemberID,
		ToMemberID:   t.ToMemberID,
		Amount:       toAPIAmount(t.Amount, currency),
	}
}

// toAPIBalances lists balances in the group's member order. Removed members
// are left out; their balance is zero.
func toAPIBalances(snap *ledger.Snapshot) []api.Balance {
	out := make([]api.Balance, 0, len(snap.Members))
	for _, m := range snap.Members {
		out = append(out, api.Balance{
			MemberID: m.ID,
			Amount:   toAPIAmount(snap.Balances[m.ID], snap.Currency),
		})
	}
	return out
}

// toPolicy builds the split policy from the wire split kind and weights.
func toPolicy(split string, weights map[string]string) (calculator.SplitPolicy, error) {
	kind := calculator.SplitEqual
	if split != "" {
		var err error
		if kind, err = calculator.ParseSplitKind(split); err != nil {
			return nil, err
		}
	}
	return calculator.PolicyFromWeights(kind, weights)
}

// participantsFor returns the requested participants, or the members named in
// the weights when none were listed, or the whole group for an equal split.
func participantsFor(requested []string, policy calculator.SplitPolicy, group *models.Group) []string {
	if len(requested) > 0 {
		return requested
	}
	if weights := policy.Weights(); len(weights) > 0 {
		ids := make([]string, 0, len(weights))
		for _, id := range group.MemberIDs() {
			if _, ok := weights[id]; ok {
				ids = append(ids, id)
			}
		}
		// Weights naming non-members still reach the engine, which rejects them.
		var extra []string
		for id := range weights {
			if !group.HasMember(id) {
				extra = append(extra, id)
			}
		}
		sort.Strings(extra)
		return append(ids, extra...)
	}
	return group.MemberIDs()
}

func toTransfer(t *api.Transfer) models.SettlementTransfer {
	return models.SettlementTransfer{
		FromMemberID: t.FromMemberID,
		ToMemberID:   t.ToMemberID,
		Amount:       money.Money(t.Amount.MinorUnits),
		Currency:     t.Amount.Currency,
	}
}
