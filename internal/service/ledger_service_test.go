package service

import (
	"context"
	"testing"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/pkg/api"
	"github.com/mmynk/settleup/pkg/api/apiconnect"
)

func usd(minor int64) api.Amount {
	return api.Amount{MinorUnits: minor, Currency: "USD"}
}

func createExpense(t *testing.T, client apiconnect.LedgerServiceClient, req *api.CreateExpenseRequest) api.Expense {
	t.Helper()

	resp, err := client.CreateExpense(context.Background(), connect.NewRequest(req))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	return resp.Msg.Expense
}

func getBalances(t *testing.T, client apiconnect.LedgerServiceClient, groupID string) map[string]int64 {
	t.Helper()

	resp, err := client.GetBalances(context.Background(), connect.NewRequest(&api.GetBalancesRequest{GroupID: groupID}))
	if err != nil {
		t.Fatalf("GetBalances failed: %v", err)
	}
	out := make(map[string]int64, len(resp.Msg.Balances))
	var sum int64
	for _, b := range resp.Msg.Balances {
		out[b.MemberID] = b.Amount.MinorUnits
		sum += b.Amount.MinorUnits
	}
	if sum != 0 {
		t.Errorf("balances sum to %d, expected 0", sum)
	}
	return out
}

func expectBalances(t *testing.T, got map[string]int64, want map[string]int64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("balances: expected %v, got %v", want, got)
	}
	for id, w := range want {
		if got[id] != w {
			t.Errorf("balance of %s: expected %d, got %d", id, w, got[id])
		}
	}
}

func TestCreateExpense_EqualSplit(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")

	req := connect.NewRequest(&api.CreateExpenseRequest{
		GroupID: group.ID,
		PayerID: "A",
		Title:   "Pizza",
		Total:   usd(100),
	})
	req.Header().Set(middleware.ActorHeader, "alice")

	resp, err := client.CreateExpense(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}

	exp := resp.Msg.Expense
	if exp.ID == "" || exp.PostingID == "" {
		t.Error("expected expense and posting IDs")
	}

	if exp.Split != api.SplitEqual {
		t.Errorf("split: expected equal, got %s", exp.Split)
	}

	if exp.CreatedBy != "alice" {
		t.Errorf("created_by: expected 'alice', got '%s'", exp.CreatedBy)
	}

	// No participants means the whole group; the remainder goes to the first.
	want := []int64{34, 33, 33}
	if len(exp.Shares) != len(want) {
		t.Fatalf("shares: expected %d, got %d", len(want), len(exp.Shares))
	}
	for i, sh := range exp.Shares {
		if sh.Amount.MinorUnits != want[i] {
			t.Errorf("share %d (%s): expected %d, got %d", i, sh.MemberID, want[i], sh.Amount.MinorUnits)
		}
		if sh.Amount.Currency != "USD" {
			t.Errorf("share %d: expected USD, got %s", i, sh.Amount.Currency)
		}
	}

	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 66, "B": -33, "C": -33})
}

func TestCreateExpense_WeightedSplits(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")

	tests := []struct {
		name    string
		split   string
		weights map[string]string
		want    map[string]int64
	}{
		{
			name:    "percentage",
			split:   api.SplitPercentage,
			weights: map[string]string{"A": "50", "B": "25", "C": "25"},
			want:    map[string]int64{"A": 500, "B": 250, "C": 250},
		},
		{
			name:    "shares",
			split:   api.SplitShares,
			weights: map[string]string{"A": "2", "B": "1", "C": "1"},
			want:    map[string]int64{"A": 500, "B": 250, "C": 250},
		},
		{
			name:    "exact",
			split:   api.SplitExact,
			weights: map[string]string{"A": "100", "B": "400", "C": "500"},
			want:    map[string]int64{"A": 100, "B": 400, "C": 500},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exp := createExpense(t, client, &api.CreateExpenseRequest{
				GroupID:      group.ID,
				PayerID:      "A",
				Total:        usd(1000),
				Split:        tt.split,
				Participants: []string{"A", "B", "C"},
				Weights:      tt.weights,
			})

			if exp.Split != tt.split {
				t.Errorf("split: expected %s, got %s", tt.split, exp.Split)
			}
			var sum int64
			for _, sh := range exp.Shares {
				sum += sh.Amount.MinorUnits
				if sh.Amount.MinorUnits != tt.want[sh.MemberID] {
					t.Errorf("share of %s: expected %d, got %d", sh.MemberID, tt.want[sh.MemberID], sh.Amount.MinorUnits)
				}
				if sh.Weight != tt.weights[sh.MemberID] {
					t.Errorf("weight of %s: expected %s, got %s", sh.MemberID, tt.weights[sh.MemberID], sh.Weight)
				}
			}
			if sum != 1000 {
				t.Errorf("shares sum to %d, expected 1000", sum)
			}
		})
	}
}

func TestCreateExpense_Rejected(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B")

	tests := []struct {
		name   string
		req    *api.CreateExpenseRequest
		code   connect.Code
		reason string
	}{
		{
			name: "exact amounts do not sum to total",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "A", Total: usd(1000), Split: api.SplitExact,
				Participants: []string{"A", "B"}, Weights: map[string]string{"A": "500", "B": "400"},
			},
			code:   connect.CodeInvalidArgument,
			reason: "SPLIT_MISMATCH",
		},
		{
			name: "percentages do not sum to 100",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "A", Total: usd(1000), Split: api.SplitPercentage,
				Participants: []string{"A", "B"}, Weights: map[string]string{"A": "50", "B": "40"},
			},
			code:   connect.CodeInvalidArgument,
			reason: "INVALID_POLICY",
		},
		{
			name: "unknown split",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "A", Total: usd(1000), Split: "itemized",
			},
			code:   connect.CodeInvalidArgument,
			reason: "INVALID_POLICY",
		},
		{
			name: "zero total",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "A", Total: usd(0),
			},
			code:   connect.CodeInvalidArgument,
			reason: "INVALID_POLICY",
		},
		{
			name: "payer not in group",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "Mallory", Total: usd(1000),
			},
			code:   connect.CodeInvalidArgument,
			reason: "UNKNOWN_MEMBER",
		},
		{
			name: "participant not in group",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "A", Total: usd(1000), Participants: []string{"A", "Mallory"},
			},
			code:   connect.CodeInvalidArgument,
			reason: "UNKNOWN_MEMBER",
		},
		{
			name: "wrong currency",
			req: &api.CreateExpenseRequest{
				GroupID: group.ID, PayerID: "A", Total: api.Amount{MinorUnits: 1000, Currency: "EUR"},
			},
			code:   connect.CodeInvalidArgument,
			reason: "CURRENCY_MISMATCH",
		},
		{
			name: "unknown group",
			req: &api.CreateExpenseRequest{
				GroupID: "nonexistent-id", PayerID: "A", Total: usd(1000),
			},
			code:   connect.CodeNotFound,
			reason: "GROUP_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.CreateExpense(context.Background(), connect.NewRequest(tt.req))
			assertCode(t, err, tt.code, tt.reason)
		})
	}

	// Rejected expenses leave no trace.
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 0, "B": 0})

	entries, err := client.ListEntries(context.Background(), connect.NewRequest(&api.ListEntriesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries.Msg.Entries) != 0 {
		t.Errorf("expected empty log, got %d entries", len(entries.Msg.Entries))
	}
}

func TestPreviewSplit(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")

	resp, err := client.PreviewSplit(context.Background(), connect.NewRequest(&api.PreviewSplitRequest{
		GroupID: group.ID,
		Total:   usd(1001),
		Split:   api.SplitShares,
		Weights: map[string]string{"B": "1", "C": "1"},
	}))
	if err != nil {
		t.Fatalf("PreviewSplit failed: %v", err)
	}

	// Participants default to the members named in the weights.
	if len(resp.Msg.Shares) != 2 {
		t.Fatalf("shares: expected 2, got %d", len(resp.Msg.Shares))
	}
	var sum int64
	for _, sh := range resp.Msg.Shares {
		sum += sh.Amount.MinorUnits
	}
	if sum != 1001 {
		t.Errorf("shares sum to %d, expected 1001", sum)
	}

	// Nothing was posted.
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 0, "B": 0, "C": 0})
}

func TestListExpenses(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")

	first := createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "A", Title: "Groceries", Total: usd(900),
		Participants: []string{"A", "B"},
	})
	second := createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "C", Title: "Taxi", Total: usd(300),
		Participants: []string{"C", "A"},
	})

	resp, err := client.ListExpenses(context.Background(), connect.NewRequest(&api.ListExpensesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}

	if len(resp.Msg.Expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(resp.Msg.Expenses))
	}

	// Newest first
	if resp.Msg.Expenses[0].ID != second.ID || resp.Msg.Expenses[1].ID != first.ID {
		t.Errorf("expected newest first, got %s then %s", resp.Msg.Expenses[0].Title, resp.Msg.Expenses[1].Title)
	}

	t.Run("member filter", func(t *testing.T) {
		resp, err := client.ListExpenses(context.Background(), connect.NewRequest(&api.ListExpensesRequest{
			GroupID:  group.ID,
			MemberID: "B",
		}))
		if err != nil {
			t.Fatalf("ListExpenses failed: %v", err)
		}

		if len(resp.Msg.Expenses) != 1 || resp.Msg.Expenses[0].ID != first.ID {
			t.Errorf("expected only %s for member B, got %d expenses", first.Title, len(resp.Msg.Expenses))
		}
	})
}

func TestReverseExpense(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B")

	exp := createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "A", Title: "Tickets", Total: usd(5000),
	})
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 2500, "B": -2500})

	resp, err := client.ReverseExpense(context.Background(), connect.NewRequest(&api.ReverseExpenseRequest{
		GroupID:   group.ID,
		ExpenseID: exp.ID,
		Reason:    "refunded",
	}))
	if err != nil {
		t.Fatalf("ReverseExpense failed: %v", err)
	}

	entry := resp.Msg.Entry
	if entry.Kind != "reversal" || entry.Ref != exp.ID || entry.Seq != 2 {
		t.Errorf("unexpected reversal entry: kind=%s ref=%s seq=%d", entry.Kind, entry.Ref, entry.Seq)
	}

	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 0, "B": 0})

	list, err := client.ListExpenses(context.Background(), connect.NewRequest(&api.ListExpensesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Msg.Expenses) != 1 || !list.Msg.Expenses[0].Reversed {
		t.Error("expected the expense to be listed as reversed")
	}

	_, err = client.ReverseExpense(context.Background(), connect.NewRequest(&api.ReverseExpenseRequest{
		GroupID:   group.ID,
		ExpenseID: exp.ID,
	}))
	assertCode(t, err, connect.CodeFailedPrecondition, "ALREADY_REVERSED")

	_, err = client.ReverseExpense(context.Background(), connect.NewRequest(&api.ReverseExpenseRequest{
		GroupID:   group.ID,
		ExpenseID: "nonexistent-id",
	}))
	assertCode(t, err, connect.CodeNotFound, "EXPENSE_NOT_FOUND")
}

func TestSettleUp(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")

	// A owes B 10 and C 20.
	createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "B", Total: usd(10), Participants: []string{"A"},
	})
	createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "C", Total: usd(20), Participants: []string{"A"},
	})
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": -30, "B": 10, "C": 20})

	proposal, err := client.ProposeSettlement(context.Background(), connect.NewRequest(&api.ProposeSettlementRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ProposeSettlement failed: %v", err)
	}

	transfers := proposal.Msg.Transfers
	if len(transfers) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(transfers))
	}
	if transfers[0].FromMemberID != "A" || transfers[0].ToMemberID != "C" || transfers[0].Amount.MinorUnits != 20 {
		t.Errorf("first transfer: expected A->C 20, got %+v", transfers[0])
	}
	if transfers[1].FromMemberID != "A" || transfers[1].ToMemberID != "B" || transfers[1].Amount.MinorUnits != 10 {
		t.Errorf("second transfer: expected A->B 10, got %+v", transfers[1])
	}

	for _, tr := range transfers {
		resp, err := client.ExecuteSettlement(context.Background(), connect.NewRequest(&api.ExecuteSettlementRequest{
			GroupID:    group.ID,
			TransferID: tr.ID,
			Memo:       "venmo",
		}))
		if err != nil {
			t.Fatalf("ExecuteSettlement failed: %v", err)
		}
		if resp.Msg.PostingID == "" || resp.Msg.Entry.Kind != "settlement" || resp.Msg.Entry.Memo != "venmo" {
			t.Errorf("unexpected settlement entry: %+v", resp.Msg.Entry)
		}
	}

	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 0, "B": 0, "C": 0})

	// A proposed transfer executes at most once.
	_, err = client.ExecuteSettlement(context.Background(), connect.NewRequest(&api.ExecuteSettlementRequest{
		GroupID:    group.ID,
		TransferID: transfers[0].ID,
	}))
	assertCode(t, err, connect.CodeNotFound, "TRANSFER_NOT_FOUND")

	// A settled group proposes nothing.
	proposal, err = client.ProposeSettlement(context.Background(), connect.NewRequest(&api.ProposeSettlementRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ProposeSettlement failed: %v", err)
	}
	if len(proposal.Msg.Transfers) != 0 {
		t.Errorf("expected no transfers, got %d", len(proposal.Msg.Transfers))
	}
}

func TestExecuteSettlement_AdHoc(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B")

	createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "A", Total: usd(100), Participants: []string{"B"},
	})

	// Partial payment
	_, err := client.ExecuteSettlement(context.Background(), connect.NewRequest(&api.ExecuteSettlementRequest{
		GroupID:  group.ID,
		Transfer: &api.Transfer{FromMemberID: "B", ToMemberID: "A", Amount: usd(40)},
	}))
	if err != nil {
		t.Fatalf("ExecuteSettlement failed: %v", err)
	}
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 60, "B": -60})

	tests := []struct {
		name   string
		req    *api.ExecuteSettlementRequest
		reason string
	}{
		{
			name:   "neither transfer nor id",
			req:    &api.ExecuteSettlementRequest{GroupID: group.ID},
			reason: "INVALID_INPUT",
		},
		{
			name: "both transfer and id",
			req: &api.ExecuteSettlementRequest{
				GroupID:    group.ID,
				TransferID: "some-id",
				Transfer:   &api.Transfer{FromMemberID: "B", ToMemberID: "A", Amount: usd(1)},
			},
			reason: "INVALID_INPUT",
		},
		{
			name: "non-positive amount",
			req: &api.ExecuteSettlementRequest{
				GroupID:  group.ID,
				Transfer: &api.Transfer{FromMemberID: "B", ToMemberID: "A", Amount: usd(0)},
			},
			reason: "INVALID_INPUT",
		},
		{
			name: "self transfer",
			req: &api.ExecuteSettlementRequest{
				GroupID:  group.ID,
				Transfer: &api.Transfer{FromMemberID: "A", ToMemberID: "A", Amount: usd(10)},
			},
			reason: "INVALID_INPUT",
		},
		{
			name: "unknown member",
			req: &api.ExecuteSettlementRequest{
				GroupID:  group.ID,
				Transfer: &api.Transfer{FromMemberID: "B", ToMemberID: "Mallory", Amount: usd(10)},
			},
			reason: "UNKNOWN_MEMBER",
		},
		{
			name: "wrong currency",
			req: &api.ExecuteSettlementRequest{
				GroupID:  group.ID,
				Transfer: &api.Transfer{FromMemberID: "B", ToMemberID: "A", Amount: api.Amount{MinorUnits: 10, Currency: "JPY"}},
			},
			reason: "CURRENCY_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.ExecuteSettlement(context.Background(), connect.NewRequest(tt.req))
			assertCode(t, err, connect.CodeInvalidArgument, tt.reason)
		})
	}

	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 60, "B": -60})
}

func TestExecuteSettlement_OutdatedProposal(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")
	createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "A", Total: usd(30), Participants: []string{"B"},
	})

	proposal, err := client.ProposeSettlement(context.Background(), connect.NewRequest(&api.ProposeSettlementRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ProposeSettlement failed: %v", err)
	}
	if len(proposal.Msg.Transfers) != 1 {
		t.Fatalf("expected 1 transfer, got %d", len(proposal.Msg.Transfers))
	}

	// B pays in cash before using the proposal.
	_, err = client.ExecuteSettlement(context.Background(), connect.NewRequest(&api.ExecuteSettlementRequest{
		GroupID:  group.ID,
		Transfer: &api.Transfer{FromMemberID: "B", ToMemberID: "A", Amount: usd(30)},
	}))
	if err != nil {
		t.Fatalf("ExecuteSettlement failed: %v", err)
	}

	_, err = client.ExecuteSettlement(context.Background(), connect.NewRequest(&api.ExecuteSettlementRequest{
		GroupID:    group.ID,
		TransferID: proposal.Msg.Transfers[0].ID,
	}))
	assertCode(t, err, connect.CodeNotFound, "TRANSFER_NOT_FOUND")

	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 0, "B": 0, "C": 0})
}

func TestSettleExpenseShare(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B", "C")
	exp := createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "A", Title: "Cabin", Total: usd(300),
	})
	if exp.Status != "PENDING" {
		t.Errorf("new expense status: expected PENDING, got %s", exp.Status)
	}

	req := connect.NewRequest(&api.SettleExpenseShareRequest{
		GroupID:   group.ID,
		ExpenseID: exp.ID,
		MemberID:  "B",
		Memo:      "bank transfer",
	})
	req.Header().Set(middleware.ActorHeader, "bob")
	resp, err := client.SettleExpenseShare(context.Background(), req)
	if err != nil {
		t.Fatalf("SettleExpenseShare failed: %v", err)
	}

	if resp.Msg.Entry.Kind != "settlement" || resp.Msg.Entry.Ref != exp.ID || resp.Msg.Entry.Actor != "bob" {
		t.Errorf("unexpected entry: %+v", resp.Msg.Entry)
	}
	if resp.Msg.Expense.Status != "PARTIALLY_SETTLED" {
		t.Errorf("status: expected PARTIALLY_SETTLED, got %s", resp.Msg.Expense.Status)
	}
	paid := make(map[string]bool)
	for _, sh := range resp.Msg.Expense.Shares {
		paid[sh.MemberID] = sh.Paid
	}
	if !paid["A"] || !paid["B"] || paid["C"] {
		t.Errorf("paid shares: expected A and B, got %v", paid)
	}
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 100, "B": 0, "C": -100})

	tests := []struct {
		name   string
		req    *api.SettleExpenseShareRequest
		code   connect.Code
		reason string
	}{
		{
			name:   "already paid",
			req:    &api.SettleExpenseShareRequest{GroupID: group.ID, ExpenseID: exp.ID, MemberID: "B"},
			code:   connect.CodeFailedPrecondition,
			reason: "ALREADY_SETTLED",
		},
		{
			name:   "payer",
			req:    &api.SettleExpenseShareRequest{GroupID: group.ID, ExpenseID: exp.ID, MemberID: "A"},
			code:   connect.CodeInvalidArgument,
			reason: "INVALID_INPUT",
		},
		{
			name:   "unknown expense",
			req:    &api.SettleExpenseShareRequest{GroupID: group.ID, ExpenseID: "missing", MemberID: "C"},
			code:   connect.CodeNotFound,
			reason: "EXPENSE_NOT_FOUND",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.SettleExpenseShare(context.Background(), connect.NewRequest(tt.req))
			assertCode(t, err, tt.code, tt.reason)
		})
	}

	_, err = client.SettleExpenseShare(context.Background(), connect.NewRequest(&api.SettleExpenseShareRequest{
		GroupID: group.ID, ExpenseID: exp.ID, MemberID: "C",
	}))
	if err != nil {
		t.Fatalf("SettleExpenseShare failed: %v", err)
	}

	list, err := client.ListExpenses(context.Background(), connect.NewRequest(&api.ListExpensesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list.Msg.Expenses) != 1 || list.Msg.Expenses[0].Status != "SETTLED" {
		t.Errorf("expected one SETTLED expense, got %+v", list.Msg.Expenses)
	}
	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": 0, "B": 0, "C": 0})
}

func TestListEntries(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B")

	for i := 0; i < 3; i++ {
		req := connect.NewRequest(&api.CreateExpenseRequest{
			GroupID: group.ID, PayerID: "A", Total: usd(200),
		})
		req.Header().Set(middleware.ActorHeader, "bob")
		if _, err := client.CreateExpense(context.Background(), req); err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
	}

	resp, err := client.ListEntries(context.Background(), connect.NewRequest(&api.ListEntriesRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}

	if len(resp.Msg.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(resp.Msg.Entries))
	}
	for i, e := range resp.Msg.Entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d: expected seq %d, got %d", i, i+1, e.Seq)
		}
		if e.Actor != "bob" {
			t.Errorf("entry %d: expected actor 'bob', got '%s'", i, e.Actor)
		}
		var sum int64
		for _, d := range e.Deltas {
			sum += d.Amount.MinorUnits
		}
		if sum != 0 {
			t.Errorf("entry %d: deltas sum to %d", i, sum)
		}
	}

	resp, err = client.ListEntries(context.Background(), connect.NewRequest(&api.ListEntriesRequest{
		GroupID:  group.ID,
		AfterSeq: 2,
	}))
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(resp.Msg.Entries) != 1 || resp.Msg.Entries[0].Seq != 3 {
		t.Errorf("expected only seq 3 after seq 2, got %d entries", len(resp.Msg.Entries))
	}
}

func TestReconcileGroup(t *testing.T) {
	groupClient, client, cleanup := setupTestServer(t)
	defer cleanup()

	group := createTestGroup(t, groupClient, "A", "B")

	createExpense(t, client, &api.CreateExpenseRequest{
		GroupID: group.ID, PayerID: "B", Total: usd(999),
	})

	resp, err := client.ReconcileGroup(context.Background(), connect.NewRequest(&api.ReconcileGroupRequest{GroupID: group.ID}))
	if err != nil {
		t.Fatalf("ReconcileGroup failed: %v", err)
	}
	if resp.Msg.Seq != 1 {
		t.Errorf("seq: expected 1, got %d", resp.Msg.Seq)
	}

	expectBalances(t, getBalances(t, client, group.ID), map[string]int64{"A": -500, "B": 500})

	_, err = client.ReconcileGroup(context.Background(), connect.NewRequest(&api.ReconcileGroupRequest{GroupID: "nonexistent-id"}))
	assertCode(t, err, connect.CodeNotFound, "GROUP_NOT_FOUND")
}
