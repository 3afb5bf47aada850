// Package ledger keeps per-group balances as a fold over the transaction log
// and serializes writers per group.
package ledger

import (
	"fmt"
	"maps"
	"math/big"
	"sort"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
)

// Ledger is a group's member balances. It is not safe for concurrent use;
// the Engine owns each live Ledger behind the group's writer lock.
//
// A Ledger built by Fold has no member set and accepts any member ID, since
// the log may name members that were removed later.
type Ledger struct {
	members  map[string]bool
	balances map[string]money.Money
}

// New returns a zero-balance ledger for the given members.
func New(memberIDs []string) *Ledger {
	l := &Ledger{
		members:  make(map[string]bool, len(memberIDs)),
		balances: make(map[string]money.Money, len(memberIDs)),
	}
	for _, id := range memberIDs {
		l.AddMember(id)
	}
	return l
}

// Restore builds a live ledger from folded balances. Only members may carry a
// non-zero balance.
func Restore(memberIDs []string, folded *Ledger) (*Ledger, error) {
	l := New(memberIDs)
	for id, b := range folded.balances {
		if b.IsZero() {
			continue
		}
		if !l.members[id] {
			return nil, fmt.Errorf("%w: removed member %s has balance %d", ErrUnbalancedLedger, id, b)
		}
		l.balances[id] = b
	}
	if sum := l.Sum(); sum.Sign() != 0 {
		return nil, fmt.Errorf("%w: balances sum to %s", ErrUnbalancedLedger, sum)
	}
	return l, nil
}

// AddMember starts tracking id at a zero balance.
func (l *Ledger) AddMember(id string) {
	l.members[id] = true
	if _, ok := l.balances[id]; !ok {
		l.balances[id] = 0
	}
}

// RemoveMember stops tracking id. The caller checks the balance is zero.
func (l *Ledger) RemoveMember(id string) {
	delete(l.members, id)
	if l.balances[id].IsZero() {
		delete(l.balances, id)
	}
}

// IsMember reports whether the ledger tracks id. Folded ledgers accept
// everyone.
func (l *Ledger) IsMember(id string) bool {
	return l.members == nil || l.members[id]
}

// Check validates p against the ledger without changing it.
func (l *Ledger) Check(p models.Posting) error {
	_, err := l.next(p)
	return err
}

// Apply validates p and applies all of its deltas, or none of them.
func (l *Ledger) Apply(p models.Posting) error {
	next, err := l.next(p)
	if err != nil {
		return err
	}
	for id, b := range next {
		l.balances[id] = b
	}
	return nil
}

// next computes the balances p would produce for the members it touches.
func (l *Ledger) next(p models.Posting) (map[string]money.Money, error) {
	if len(p.Deltas) == 0 {
		return nil, fmt.Errorf("%w: posting has no deltas", ErrUnbalancedPosting)
	}

	sum := money.ExactSum(func(yield func(money.Money) bool) {
		for _, d := range p.Deltas {
			if !yield(d.Amount) {
				return
			}
		}
	})
	if sum.Sign() != 0 {
		return nil, fmt.Errorf("%w: deltas sum to %s", ErrUnbalancedPosting, sum)
	}

	next := make(map[string]money.Money, len(p.Deltas))
	for _, d := range p.Deltas {
		if !l.IsMember(d.MemberID) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMember, d.MemberID)
		}
		var err error
		cur, ok := next[d.MemberID]
		if !ok {
			cur = l.balances[d.MemberID]
		}
		if next[d.MemberID], err = cur.Add(d.Amount); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// Balances returns a copy of every tracked balance.
func (l *Ledger) Balances() map[string]money.Money {
	out := make(map[string]money.Money, len(l.balances))
	for id, b := range l.balances {
		out[id] = b
	}
	return out
}

// BalanceOf returns id's balance; unknown members have none.
func (l *Ledger) BalanceOf(id string) money.Money {
	return l.balances[id]
}

// Sum adds every balance exactly. It is zero for any ledger built from
// valid postings, even when the positive balances alone exceed int64.
func (l *Ledger) Sum() *big.Int {
	return money.ExactSum(maps.Values(l.balances))
}

// Equal reports whether both ledgers hold the same non-zero balances.
func (l *Ledger) Equal(other *Ledger) bool {
	return diff(l.balances, other.balances) == ""
}

// Fold replays postings in log order from empty balances.
func Fold(entries []models.LogEntry) (*Ledger, error) {
	l := &Ledger{balances: make(map[string]money.Money)}
	for _, e := range entries {
		if err := l.Apply(e.Posting); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrUnbalancedLedger, e.Seq, err)
		}
	}
	if sum := l.Sum(); sum.Sign() != 0 {
		return nil, fmt.Errorf("%w: replayed balances sum to %s", ErrUnbalancedLedger, sum)
	}
	return l, nil
}

// diff describes the first member whose balances differ, or "" when equal.
func diff(a, b map[string]money.Money) string {
	ids := make(map[string]bool, len(a)+len(b))
	for id := range a {
		ids[id] = true
	}
	for id := range b {
		ids[id] = true
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)
	for _, id := range sorted {
		if a[id] != b[id] {
			return fmt.Sprintf("%s: %d != %d", id, a[id], b[id])
		}
	}
	return ""
}
