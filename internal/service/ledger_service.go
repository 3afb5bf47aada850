package service

import (
	"context"
	"fmt"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/internal/middleware"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/pkg/api"
	"github.com/mmynk/settleup/pkg/api/apiconnect"
)

// LedgerService implements the Connect LedgerService
type LedgerService struct {
	engine *ledger.Engine
}

var _ apiconnect.LedgerServiceHandler = (*LedgerService)(nil)

// NewLedgerService creates a new LedgerService backed by the ledger engine.
func NewLedgerService(engine *ledger.Engine) *LedgerService {
	return &LedgerService{engine: engine}
}

// CreateExpense splits an expense and posts it to the group ledger.
func (s *LedgerService) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	slog.Info("CreateExpense request received",
		"group_id", req.Msg.GroupID,
		"payer_id", req.Msg.PayerID,
		"split", req.Msg.Split,
		"participants_count", len(req.Msg.Participants),
	)

	policy, err := toPolicy(req.Msg.Split, req.Msg.Weights)
	if err != nil {
		return nil, toConnectError("CreateExpense", err)
	}
	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("CreateExpense", err)
	}

	expense, err := s.engine.CreateExpense(ctx, ledger.ExpenseInput{
		GroupID:      req.Msg.GroupID,
		PayerID:      req.Msg.PayerID,
		Title:        req.Msg.Title,
		Description:  req.Msg.Description,
		Total:        money.Money(req.Msg.Total.MinorUnits),
		Currency:     req.Msg.Total.Currency,
		Policy:       policy,
		Participants: participantsFor(req.Msg.Participants, policy, group),
		Actor:        middleware.GetActor(ctx),
	})
	if err != nil {
		return nil, toConnectError("CreateExpense", err)
	}

	slog.Info("Expense created", "group_id", expense.GroupID, "expense_id", expense.ID)

	return connect.NewResponse(&api.CreateExpenseResponse{
		Expense: toAPIExpense(&models.ExpenseSummary{Expense: *expense}),
	}), nil
}

// PreviewSplit computes the shares an expense would produce without posting
// it.
func (s *LedgerService) PreviewSplit(ctx context.Context, req *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error) {
	policy, err := toPolicy(req.Msg.Split, req.Msg.Weights)
	if err != nil {
		return nil, toConnectError("PreviewSplit", err)
	}
	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("PreviewSplit", err)
	}

	shares, err := s.engine.PreviewSplit(ctx, req.Msg.GroupID,
		money.Money(req.Msg.Total.MinorUnits), req.Msg.Total.Currency,
		policy, participantsFor(req.Msg.Participants, policy, group))
	if err != nil {
		return nil, toConnectError("PreviewSplit", err)
	}

	for _, sh := range shares {
		slog.Debug("Share", "member_id", sh.MemberID, "amount", sh.Amount)
	}

	return connect.NewResponse(&api.PreviewSplitResponse{
		Shares: toAPIShares(shares, policy, group.Currency),
	}), nil
}

// ReverseExpense posts the negation of an expense.
func (s *LedgerService) ReverseExpense(ctx context.Context, req *connect.Request[api.ReverseExpenseRequest]) (*connect.Response[api.ReverseExpenseResponse], error) {
	slog.Info("ReverseExpense request received",
		"group_id", req.Msg.GroupID,
		"expense_id", req.Msg.ExpenseID,
	)

	entry, err := s.engine.ReverseExpense(ctx, req.Msg.GroupID, req.Msg.ExpenseID, req.Msg.Reason, middleware.GetActor(ctx))
	if err != nil {
		return nil, toConnectError("ReverseExpense", err)
	}
	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ReverseExpense", err)
	}

	slog.Info("Expense reversed", "group_id", req.Msg.GroupID, "expense_id", req.Msg.ExpenseID, "seq", entry.Seq)

	return connect.NewResponse(&api.ReverseExpenseResponse{
		Entry: toAPIEntry(entry, group.Currency),
	}), nil
}

// ListExpenses lists a group's expenses, newest first.
func (s *LedgerService) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	slog.Info("ListExpenses request received",
		"group_id", req.Msg.GroupID,
		"member_id", req.Msg.MemberID,
	)

	expenses, err := s.engine.ListExpenses(ctx, req.Msg.GroupID, req.Msg.MemberID)
	if err != nil {
		return nil, toConnectError("ListExpenses", err)
	}

	out := make([]api.Expense, len(expenses))
	for i := range expenses {
		out[i] = toAPIExpense(&expenses[i])
	}

	slog.Info("ListExpenses successful", "group_id", req.Msg.GroupID, "count", len(out))

	return connect.NewResponse(&api.ListExpensesResponse{Expenses: out}), nil
}

// GetBalances returns every member's balance as of the latest commit.
func (s *LedgerService) GetBalances(ctx context.Context, req *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	slog.Info("GetBalances request received", "group_id", req.Msg.GroupID)

	snap, err := s.engine.Snapshot(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("GetBalances", err)
	}

	return connect.NewResponse(&api.GetBalancesResponse{
		Balances: toAPIBalances(snap),
		Seq:      snap.Seq,
	}), nil
}

// ProposeSettlement plans the transfers that settle the group.
func (s *LedgerService) ProposeSettlement(ctx context.Context, req *connect.Request[api.ProposeSettlementRequest]) (*connect.Response[api.ProposeSettlementResponse], error) {
	slog.Info("ProposeSettlement request received", "group_id", req.Msg.GroupID)

	transfers, err := s.engine.ProposeSettlement(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ProposeSettlement", err)
	}
	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ProposeSettlement", err)
	}

	out := make([]api.Transfer, len(transfers))
	for i, t := range transfers {
		out[i] = toAPITransfer(t, group.Currency)
	}

	slog.Info("Settlement proposed", "group_id", req.Msg.GroupID, "transfers", len(out))

	return connect.NewResponse(&api.ProposeSettlementResponse{Transfers: out}), nil
}

// ExecuteSettlement posts a proposed transfer or an ad-hoc one.
func (s *LedgerService) ExecuteSettlement(ctx context.Context, req *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error) {
	slog.Info("ExecuteSettlement request received",
		"group_id", req.Msg.GroupID,
		"transfer_id", req.Msg.TransferID,
	)

	if (req.Msg.TransferID == "") == (req.Msg.Transfer == nil) {
		return nil, toConnectError("ExecuteSettlement",
			fmt.Errorf("%w: exactly one of transfer_id and transfer is required", ledger.ErrInvalidInput))
	}

	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ExecuteSettlement", err)
	}

	actor := middleware.GetActor(ctx)
	var entry *models.LogEntry
	if req.Msg.TransferID != "" {
		entry, err = s.engine.ExecuteProposed(ctx, req.Msg.GroupID, req.Msg.TransferID, req.Msg.Memo, actor)
	} else {
		entry, err = s.engine.ExecuteSettlement(ctx, req.Msg.GroupID, toTransfer(req.Msg.Transfer), req.Msg.Memo, actor)
	}
	if err != nil {
		return nil, toConnectError("ExecuteSettlement", err)
	}

	slog.Info("Settlement executed", "group_id", req.Msg.GroupID, "posting_id", entry.Posting.ID, "seq", entry.Seq)

	return connect.NewResponse(&api.ExecuteSettlementResponse{
		PostingID: entry.Posting.ID,
		Entry:     toAPIEntry(entry, group.Currency),
	}), nil
}

// SettleExpenseShare records a participant paying back their share of one
// expense.
func (s *LedgerService) SettleExpenseShare(ctx context.Context, req *connect.Request[api.SettleExpenseShareRequest]) (*connect.Response[api.SettleExpenseShareResponse], error) {
	slog.Info("SettleExpenseShare request received",
		"group_id", req.Msg.GroupID,
		"expense_id", req.Msg.ExpenseID,
		"member_id", req.Msg.MemberID,
	)

	entry, err := s.engine.SettleExpenseShare(ctx, req.Msg.GroupID, req.Msg.ExpenseID, req.Msg.MemberID, req.Msg.Memo, middleware.GetActor(ctx))
	if err != nil {
		return nil, toConnectError("SettleExpenseShare", err)
	}
	expense, err := s.engine.GetExpense(ctx, req.Msg.GroupID, req.Msg.ExpenseID)
	if err != nil {
		return nil, toConnectError("SettleExpenseShare", err)
	}

	slog.Info("Expense share settled",
		"expense_id", expense.ID,
		"member_id", req.Msg.MemberID,
		"status", expense.Status(),
	)

	return connect.NewResponse(&api.SettleExpenseShareResponse{
		Entry:   toAPIEntry(entry, expense.Currency),
		Expense: toAPIExpense(expense),
	}), nil
}

// ListEntries returns the group's transaction log after AfterSeq.
func (s *LedgerService) ListEntries(ctx context.Context, req *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error) {
	slog.Info("ListEntries request received",
		"group_id", req.Msg.GroupID,
		"after_seq", req.Msg.AfterSeq,
	)

	group, err := s.engine.GetGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ListEntries", err)
	}
	entries, err := s.engine.History(ctx, req.Msg.GroupID, req.Msg.AfterSeq)
	if err != nil {
		return nil, toConnectError("ListEntries", err)
	}

	out := make([]api.Entry, len(entries))
	for i := range entries {
		out[i] = toAPIEntry(&entries[i], group.Currency)
	}

	return connect.NewResponse(&api.ListEntriesResponse{Entries: out}), nil
}

// ReconcileGroup rebuilds the group from its log and clears a halt.
func (s *LedgerService) ReconcileGroup(ctx context.Context, req *connect.Request[api.ReconcileGroupRequest]) (*connect.Response[api.ReconcileGroupResponse], error) {
	slog.Info("ReconcileGroup request received",
		"group_id", req.Msg.GroupID,
		"actor", middleware.GetActor(ctx),
	)

	if err := s.engine.Reconcile(ctx, req.Msg.GroupID); err != nil {
		return nil, toConnectError("ReconcileGroup", err)
	}
	snap, err := s.engine.Snapshot(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ReconcileGroup", err)
	}

	return connect.NewResponse(&api.ReconcileGroupResponse{Seq: snap.Seq}), nil
}
