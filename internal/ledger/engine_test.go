package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage/memory"
	"github.com/mmynk/settleup/internal/storage/sqlite"
)

var trio = []models.Member{
	{ID: "A", Name: "Alice"},
	{ID: "B", Name: "Bob"},
	{ID: "C", Name: "Carol"},
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append([]Option{WithMetrics(metrics.New(prometheus.NewRegistry()))}, opts...)
	return NewEngine(memory.New(), opts...)
}

func createTrio(t *testing.T, e *Engine) *models.Group {
	t.Helper()
	group, err := e.CreateGroup(context.Background(), "Trip", "usd", trio)
	require.NoError(t, err)
	return group
}

func equalExpense(groupID, payer string, total money.Money, participants ...string) ExpenseInput {
	return ExpenseInput{
		GroupID:      groupID,
		PayerID:      payer,
		Title:        "Dinner",
		Total:        total,
		Participants: participants,
	}
}

func TestCreateGroup(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	group := createTrio(t, e)
	assert.Equal(t, "USD", group.Currency)
	assert.Equal(t, []string{"A", "B", "C"}, group.MemberIDs())

	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"A": 0, "B": 0, "C": 0}, balances)

	_, err = e.CreateGroup(ctx, "Bad", "XXX", trio)
	assert.ErrorIs(t, err, money.ErrInvalidCurrency)

	_, err = e.CreateGroup(ctx, " ", "USD", trio)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = e.CreateGroup(ctx, "Dup", "USD", []models.Member{{ID: "x", Name: "X"}, {ID: "x", Name: "Y"}})
	assert.ErrorIs(t, err, ErrDuplicateMember)

	generated, err := e.CreateGroup(ctx, "Anon", "EUR", []models.Member{{Name: "Dana"}})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.Members[0].ID)

	_, err = e.GetGroup(ctx, "missing")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestCreateExpenseEqualSplit(t *testing.T) {
	ctx := context.Background()
	rec := events.NewRecorder()
	e := newTestEngine(t, WithPublisher(rec))
	group := createTrio(t, e)

	exp, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 100, "A", "B", "C"))
	require.NoError(t, err)
	assert.NotEmpty(t, exp.ID)
	assert.NotEmpty(t, exp.PostingID)
	assert.Equal(t, []money.Money{34, 33, 33}, []money.Money{exp.Shares[0].Amount, exp.Shares[1].Amount, exp.Shares[2].Amount})

	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"A": 66, "B": -33, "C": -33}, balances)

	published := rec.Events()
	require.Len(t, published, 1)
	assert.Equal(t, "ledger.expense", published[0].RoutingKey())
	assert.Equal(t, "USD", published[0].Currency)
	assert.Equal(t, int64(1), published[0].Seq)
}

func TestCreateExpenseRejections(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	exact, err := calculator.NewExactSplit(map[string]money.Money{"A": 50, "B": 49})
	require.NoError(t, err)
	pct, err := calculator.NewPercentageSplit(map[string]decimal.Decimal{"A": decimal.NewFromInt(50), "B": decimal.NewFromInt(50)})
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      ExpenseInput
		wantErr error
	}{
		{"split mismatch", ExpenseInput{GroupID: group.ID, PayerID: "A", Total: 100, Policy: exact, Participants: []string{"A", "B"}}, calculator.ErrSplitMismatch},
		{"no participants", equalExpense(group.ID, "A", 100), calculator.ErrInvalidPolicy},
		{"zero total", equalExpense(group.ID, "A", 0, "A"), calculator.ErrInvalidPolicy},
		{"unknown payer", equalExpense(group.ID, "Z", 100, "A"), ErrUnknownMember},
		{"unknown participant", equalExpense(group.ID, "A", 100, "A", "Z"), ErrUnknownMember},
		{"weights for other members", ExpenseInput{GroupID: group.ID, PayerID: "A", Total: 100, Policy: pct, Participants: []string{"A", "C"}}, calculator.ErrInvalidPolicy},
		{"currency mismatch", ExpenseInput{GroupID: group.ID, PayerID: "A", Total: 100, Currency: "EUR", Participants: []string{"A"}}, ErrCurrencyMismatch},
		{"missing group", equalExpense("nope", "A", 100, "A"), ErrGroupNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.CreateExpense(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	history, err := e.History(ctx, group.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "rejected expenses must not reach the log")

	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"A": 0, "B": 0, "C": 0}, balances)
}

func TestSettleUp(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	// A owes 30, B is owed 10, C is owed 20.
	shares, err := calculator.NewSharesSplit(map[string]int64{"A": 3})
	require.NoError(t, err)
	_, err = e.CreateExpense(ctx, ExpenseInput{GroupID: group.ID, PayerID: "B", Total: 10, Policy: shares, Participants: []string{"A"}})
	require.NoError(t, err)
	_, err = e.CreateExpense(ctx, equalExpense(group.ID, "C", 20, "A"))
	require.NoError(t, err)

	plan, err := e.ProposeSettlement(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, "A", plan[0].FromMemberID)
	assert.Equal(t, "C", plan[0].ToMemberID)
	assert.Equal(t, money.Money(20), plan[0].Amount)
	assert.Equal(t, "B", plan[1].ToMemberID)
	assert.Equal(t, money.Money(10), plan[1].Amount)

	for _, tr := range plan {
		entry, err := e.ExecuteProposed(ctx, group.ID, tr.ID, "", "A")
		require.NoError(t, err)
		assert.Equal(t, models.EntrySettlement, entry.Posting.Kind)
		assert.Equal(t, tr.ID, entry.Posting.Ref)
	}

	_, err = e.ExecuteProposed(ctx, group.ID, plan[0].ID, "", "A")
	assert.ErrorIs(t, err, ErrTransferNotFound)

	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	for m, b := range balances {
		assert.True(t, b.IsZero(), "%s left with %d", m, b)
	}

	empty, err := e.ProposeSettlement(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPartialSettlement(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	_, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 90, "B"))
	require.NoError(t, err)

	_, err = e.ExecuteSettlement(ctx, group.ID, models.SettlementTransfer{FromMemberID: "B", ToMemberID: "A", Amount: 40}, "part", "B")
	require.NoError(t, err)

	bal, err := e.BalanceOf(ctx, group.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, money.Money(-50), bal)

	plan, err := e.ProposeSettlement(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, money.Money(50), plan[0].Amount)

	_, err = e.ExecuteSettlement(ctx, group.ID, models.SettlementTransfer{FromMemberID: "B", ToMemberID: "Z", Amount: 1}, "", "")
	assert.ErrorIs(t, err, ErrUnknownMember)

	_, err = e.BalanceOf(ctx, group.ID, "Z")
	assert.ErrorIs(t, err, ErrUnknownMember)
}

func TestStaleProposalIsRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	_, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 30, "B"))
	require.NoError(t, err)

	plan, err := e.ProposeSettlement(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, plan, 1)

	// B pays A directly, which makes the proposed B→A 30 obsolete.
	_, err = e.ExecuteSettlement(ctx, group.ID, models.SettlementTransfer{FromMemberID: "B", ToMemberID: "A", Amount: 30}, "cash", "B")
	require.NoError(t, err)

	_, err = e.ExecuteProposed(ctx, group.ID, plan[0].ID, "", "B")
	assert.ErrorIs(t, err, ErrTransferNotFound)

	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"A": 0, "B": 0, "C": 0}, balances)

	// A new expense also invalidates the plan made before it.
	_, err = e.CreateExpense(ctx, equalExpense(group.ID, "A", 30, "B"))
	require.NoError(t, err)
	plan, err = e.ProposeSettlement(ctx, group.ID)
	require.NoError(t, err)
	_, err = e.CreateExpense(ctx, equalExpense(group.ID, "B", 10, "A"))
	require.NoError(t, err)
	_, err = e.ExecuteProposed(ctx, group.ID, plan[0].ID, "", "B")
	assert.ErrorIs(t, err, ErrTransferNotFound)

	plan, err = e.ProposeSettlement(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, plan, 1)
	assert.Equal(t, money.Money(20), plan[0].Amount)
	_, err = e.ExecuteProposed(ctx, group.ID, plan[0].ID, "", "B")
	require.NoError(t, err)
}

func TestAdHocSettlementCurrency(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	_, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 30, "B"))
	require.NoError(t, err)

	tests := []struct {
		currency string
		wantErr  error
	}{
		{"EUR", ErrCurrencyMismatch},
		{"XXX", money.ErrInvalidCurrency},
		{"usd", nil},
		{"", nil},
	}
	for _, tt := range tests {
		_, err := e.ExecuteSettlement(ctx, group.ID, models.SettlementTransfer{FromMemberID: "B", ToMemberID: "A", Amount: 10, Currency: tt.currency}, "", "")
		if tt.wantErr == nil {
			assert.NoError(t, err, tt.currency)
		} else {
			assert.ErrorIs(t, err, tt.wantErr, tt.currency)
		}
	}

	bal, err := e.BalanceOf(ctx, group.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, money.Money(-10), bal)
}

func TestBalancesBeyondInt64DoNotHalt(t *testing.T) {
	ctx := context.Background()
	huge, err := calculator.NewExactSplit(map[string]money.Money{"B": math.MaxInt64})
	require.NoError(t, err)

	// Each group sees a fresh map iteration order.
	for i := 0; i < 20; i++ {
		e := newTestEngine(t)
		group, err := e.CreateGroup(ctx, "Big", "USD", []models.Member{
			{ID: "A", Name: "A"}, {ID: "C", Name: "C"}, {ID: "B", Name: "B"}, {ID: "D", Name: "D"},
		})
		require.NoError(t, err)

		_, err = e.CreateExpense(ctx, ExpenseInput{GroupID: group.ID, PayerID: "A", Total: math.MaxInt64, Policy: huge, Participants: []string{"B"}})
		require.NoError(t, err)
		_, err = e.CreateExpense(ctx, equalExpense(group.ID, "C", 1, "D"))
		require.NoError(t, err)

		snap, err := e.Snapshot(ctx, group.ID)
		require.NoError(t, err)
		assert.False(t, snap.Halted)
		assert.Equal(t, money.Money(math.MaxInt64), snap.Balances["A"])

		plan, err := e.ProposeSettlement(ctx, group.ID)
		require.NoError(t, err)
		assert.Len(t, plan, 2)
		require.NoError(t, e.Verify(ctx, group.ID))
	}
}

func TestSettleExpenseShare(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")
	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	e := NewEngine(store)
	group := createTrio(t, e)

	exp, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 90, "A", "B", "C"))
	require.NoError(t, err)

	summary, err := e.GetExpense(ctx, group.ID, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExpensePending, summary.Status())
	assert.True(t, summary.Paid("A"))

	// An unrelated payment does not count toward the expense.
	_, err = e.ExecuteSettlement(ctx, group.ID, models.SettlementTransfer{FromMemberID: "B", ToMemberID: "A", Amount: 10}, "", "")
	require.NoError(t, err)

	entry, err := e.SettleExpenseShare(ctx, group.ID, exp.ID, "B", "paid back", "B")
	require.NoError(t, err)
	assert.Equal(t, exp.ID, entry.Posting.Ref)
	assert.Equal(t, []models.Delta{{MemberID: "B", Amount: 30}, {MemberID: "A", Amount: -30}}, entry.Posting.Deltas)

	summary, err = e.GetExpense(ctx, group.ID, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExpensePartiallySettled, summary.Status())
	assert.True(t, summary.Paid("B"))
	assert.False(t, summary.Paid("C"))
	assert.Equal(t, money.Money(30), summary.Outstanding("C"))

	tests := []struct {
		name    string
		member  string
		expense string
		wantErr error
	}{
		{"already paid", "B", exp.ID, ErrAlreadySettled},
		{"payer", "A", exp.ID, ErrInvalidInput},
		{"not a participant", "Z", exp.ID, ErrInvalidInput},
		{"unknown expense", "C", "missing", ErrExpenseNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.SettleExpenseShare(ctx, group.ID, tt.expense, tt.member, "", "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = e.SettleExpenseShare(ctx, group.ID, exp.ID, "C", "", "C")
	require.NoError(t, err)

	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"A": -10, "B": 10, "C": 0}, balances)
	require.NoError(t, store.Close())

	// Status is derived from the log, so it survives a restart.
	reopened, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	e2 := NewEngine(reopened)
	require.NoError(t, e2.Open(ctx))

	expenses, err := e2.ListExpenses(ctx, group.ID, "")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, models.ExpenseSettled, expenses[0].Status())
	assert.Equal(t, map[string]money.Money{"B": 30, "C": 30}, expenses[0].Settled)

	reversible, err := e2.CreateExpense(ctx, equalExpense(group.ID, "A", 20, "B"))
	require.NoError(t, err)
	_, err = e2.ReverseExpense(ctx, group.ID, reversible.ID, "", "")
	require.NoError(t, err)
	_, err = e2.SettleExpenseShare(ctx, group.ID, reversible.ID, "B", "", "")
	assert.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestTimestampsShareOneUnit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)
	e := newTestEngine(t, WithClock(func() time.Time { return now }))
	group := createTrio(t, e)

	exp, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 30, "B"))
	require.NoError(t, err)
	entries, err := e.History(ctx, group.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	want := now.UnixMilli()
	assert.Equal(t, want, group.CreatedAt)
	assert.Equal(t, want, exp.CreatedAt)
	assert.Equal(t, want, entries[0].CreatedAt)
}

func TestReverseExpense(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	_, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 60, "A", "B", "C"))
	require.NoError(t, err)
	before, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)

	exp, err := e.CreateExpense(ctx, equalExpense(group.ID, "B", 1001, "A", "B", "C"))
	require.NoError(t, err)

	entry, err := e.ReverseExpense(ctx, group.ID, exp.ID, "entered twice", "B")
	require.NoError(t, err)
	assert.Equal(t, models.EntryReversal, entry.Posting.Kind)

	after, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = e.ReverseExpense(ctx, group.ID, exp.ID, "", "B")
	assert.ErrorIs(t, err, ErrAlreadyReversed)
	_, err = e.ReverseExpense(ctx, group.ID, "missing", "", "B")
	assert.ErrorIs(t, err, ErrExpenseNotFound)

	list, err := e.ListExpenses(ctx, group.ID, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	reversed := map[string]bool{}
	for _, s := range list {
		reversed[s.ID] = s.Reversed
	}
	assert.True(t, reversed[exp.ID])
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	group := createTrio(t, e)

	_, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 10, "B"))
	require.NoError(t, err)

	assert.ErrorIs(t, e.RemoveMember(ctx, group.ID, "B"), ErrMemberHasBalance)
	assert.ErrorIs(t, e.RemoveMember(ctx, group.ID, "Z"), ErrUnknownMember)
	require.NoError(t, e.RemoveMember(ctx, group.ID, "C"))

	_, err = e.CreateExpense(ctx, equalExpense(group.ID, "A", 10, "C"))
	assert.ErrorIs(t, err, ErrUnknownMember)

	_, err = e.AddMember(ctx, group.ID, models.Member{ID: "A", Name: "Again"})
	assert.ErrorIs(t, err, ErrDuplicateMember)
	dana, err := e.AddMember(ctx, group.ID, models.Member{Name: "Dana"})
	require.NoError(t, err)

	got, err := e.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", dana.ID}, got.MemberIDs())

	onlyB, err := e.ListExpenses(ctx, group.ID, "B")
	require.NoError(t, err)
	assert.Len(t, onlyB, 1)
	none, err := e.ListExpenses(ctx, group.ID, dana.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLockTimeoutIsPerGroup(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithLockTimeout(50*time.Millisecond))
	g1 := createTrio(t, e)
	g2 := createTrio(t, e)

	b1, err := e.book(ctx, g1.ID)
	require.NoError(t, err)
	require.NoError(t, b1.sem.Acquire(ctx, 1))

	// Another group is unaffected by the held lock.
	_, err = e.CreateExpense(ctx, equalExpense(g2.ID, "A", 10, "B"))
	require.NoError(t, err)

	start := time.Now()
	_, err = e.CreateExpense(ctx, equalExpense(g1.ID, "A", 10, "B"))
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// Readers never wait for the writer lock.
	_, err = e.Balances(ctx, g1.ID)
	require.NoError(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.CreateExpense(cctx, equalExpense(g1.ID, "A", 10, "B"))
	assert.ErrorIs(t, err, context.Canceled)

	b1.sem.Release(1)
	_, err = e.CreateExpense(ctx, equalExpense(g1.ID, "A", 10, "B"))
	require.NoError(t, err)
}

func TestConcurrentPostsStayBalanced(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithLockTimeout(10*time.Second))
	group := createTrio(t, e)

	stop := make(chan struct{})
	var readerErr error
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			balances, err := e.Balances(ctx, group.ID)
			if err != nil {
				readerErr = err
				return
			}
			var sum money.Money
			for _, b := range balances {
				sum += b
			}
			if sum != 0 {
				readerErr = errors.New("observed unbalanced snapshot")
				return
			}
		}
	}()

	var writers sync.WaitGroup
	payers := []string{"A", "B", "C"}
	for i := 0; i < 30; i++ {
		writers.Add(1)
		go func(i int) {
			defer writers.Done()
			_, err := e.CreateExpense(ctx, equalExpense(group.ID, payers[i%3], money.Money(100+i), "A", "B", "C"))
			assert.NoError(t, err)
		}(i)
	}
	writers.Wait()
	close(stop)
	readers.Wait()
	require.NoError(t, readerErr)

	history, err := e.History(ctx, group.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 30)
	for i, entry := range history {
		assert.Equal(t, int64(i+1), entry.Seq)
	}
	require.NoError(t, e.Verify(ctx, group.ID))
}

func TestOpenReplaysSQLiteLog(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	store, err := sqlite.New(dbPath)
	require.NoError(t, err)
	e := NewEngine(store)
	group, err := e.CreateGroup(ctx, "Flat", "GBP", trio)
	require.NoError(t, err)

	pct, err := calculator.NewPercentageSplit(map[string]decimal.Decimal{
		"A": decimal.RequireFromString("33.33"),
		"B": decimal.RequireFromString("33.33"),
		"C": decimal.RequireFromString("33.34"),
	})
	require.NoError(t, err)
	_, err = e.CreateExpense(ctx, ExpenseInput{GroupID: group.ID, PayerID: "A", Total: 1001, Policy: pct, Participants: []string{"A", "B", "C"}})
	require.NoError(t, err)
	_, err = e.ExecuteSettlement(ctx, group.ID, models.SettlementTransfer{FromMemberID: "B", ToMemberID: "A", Amount: 100}, "", "")
	require.NoError(t, err)

	live, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	e2 := NewEngine(reopened)
	require.NoError(t, e2.Open(ctx))
	replayed, err := e2.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, live, replayed)

	expenses, err := e2.ListExpenses(ctx, group.ID, "")
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	policy, err := expenses[0].Policy()
	require.NoError(t, err)
	assert.Equal(t, calculator.SplitPercentage, policy.Kind())
}

func TestHaltAndReconcile(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := NewEngine(store)
	group, err := e.CreateGroup(ctx, "Trip", "USD", trio)
	require.NoError(t, err)
	_, err = e.CreateExpense(ctx, equalExpense(group.ID, "A", 30, "B", "C"))
	require.NoError(t, err)

	// Corrupt the live ledger behind the engine's back.
	b, err := e.book(ctx, group.ID)
	require.NoError(t, err)
	b.ledger.balances["A"] += 7
	b.ledger.balances["B"] -= 7

	assert.ErrorIs(t, e.Verify(ctx, group.ID), ErrUnbalancedLedger)

	_, err = e.Balances(ctx, group.ID)
	assert.ErrorIs(t, err, ErrUnbalancedLedger)
	_, err = e.ProposeSettlement(ctx, group.ID)
	assert.ErrorIs(t, err, ErrUnbalancedLedger)
	_, err = e.CreateExpense(ctx, equalExpense(group.ID, "A", 30, "B"))
	assert.ErrorIs(t, err, ErrUnbalancedLedger)

	// The group stays readable for inspection.
	_, err = e.GetGroup(ctx, group.ID)
	require.NoError(t, err)

	require.NoError(t, e.Reconcile(ctx, group.ID))
	balances, err := e.Balances(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]money.Money{"A": 30, "B": -15, "C": -15}, balances)
}

func TestLazyLoadFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	first := NewEngine(store)
	group, err := first.CreateGroup(ctx, "Trip", "JPY", trio)
	require.NoError(t, err)
	_, err = first.CreateExpense(ctx, equalExpense(group.ID, "A", 300, "A", "B", "C"))
	require.NoError(t, err)

	second := NewEngine(store)
	bal, err := second.BalanceOf(ctx, group.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, money.Money(200), bal)
}

func TestPublishFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	rec := events.NewRecorder()
	rec.FailWith(errors.New("broker down"))
	e := newTestEngine(t, WithPublisher(rec))
	group := createTrio(t, e)

	_, err := e.CreateExpense(ctx, equalExpense(group.ID, "A", 10, "B"))
	require.NoError(t, err)

	bal, err := e.BalanceOf(ctx, group.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, money.Money(-10), bal)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "SPLIT_MISMATCH", Reason(calculator.ErrSplitMismatch))
	assert.Equal(t, "LOCK_TIMEOUT", Reason(ErrLockTimeout))
	assert.Equal(t, "GROUP_NOT_FOUND", Reason(ErrGroupNotFound))
	assert.Equal(t, "INTERNAL", Reason(errors.New("disk on fire")))
}
