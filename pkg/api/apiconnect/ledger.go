package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/pkg/api"
)

// LedgerServiceName is the fully-qualified name of the LedgerService.
const LedgerServiceName = "settleup.v1.LedgerService"

// Procedure paths of the LedgerService RPCs.
const (
	LedgerServiceCreateExpenseProcedure      = "/settleup.v1.LedgerService/CreateExpense"
	LedgerServicePreviewSplitProcedure       = "/settleup.v1.LedgerService/PreviewSplit"
	LedgerServiceReverseExpenseProcedure     = "/settleup.v1.LedgerService/ReverseExpense"
	LedgerServiceListExpensesProcedure       = "/settleup.v1.LedgerService/ListExpenses"
	LedgerServiceGetBalancesProcedure        = "/settleup.v1.LedgerService/GetBalances"
	LedgerServiceProposeSettlementProcedure  = "/settleup.v1.LedgerService/ProposeSettlement"
	LedgerServiceExecuteSettlementProcedure  = "/settleup.v1.LedgerService/ExecuteSettlement"
	LedgerServiceSettleExpenseShareProcedure = "/settleup.v1.LedgerService/SettleExpenseShare"
	LedgerServiceListEntriesProcedure        = "/settleup.v1.LedgerService/ListEntries"
	LedgerServiceReconcileGroupProcedure     = "/settleup.v1.LedgerService/ReconcileGroup"
)

// LedgerServiceHandler is implemented by the server side of LedgerService.
type LedgerServiceHandler interface {
	CreateExpense(context.Context, *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error)
	PreviewSplit(context.Context, *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error)
	ReverseExpense(context.Context, *connect.Request[api.ReverseExpenseRequest]) (*connect.Response[api.ReverseExpenseResponse], error)
	ListExpenses(context.Context, *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error)
	GetBalances(context.Context, *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error)
	ProposeSettlement(context.Context, *connect.Request[api.ProposeSettlementRequest]) (*connect.Response[api.ProposeSettlementResponse], error)
	ExecuteSettlement(context.Context, *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error)
	SettleExpenseShare(context.Context, *connect.Request[api.SettleExpenseShareRequest]) (*connect.Response[api.SettleExpenseShareResponse], error)
	ListEntries(context.Context, *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error)
	ReconcileGroup(context.Context, *connect.Request[api.ReconcileGroupRequest]) (*connect.Response[api.ReconcileGroupResponse], error)
}

// NewLedgerServiceHandler builds an HTTP handler for svc and returns the
// path to mount it on.
func NewLedgerServiceHandler(svc LedgerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)
	routes := map[string]http.Handler{
		LedgerServiceCreateExpenseProcedure:      connect.NewUnaryHandler(LedgerServiceCreateExpenseProcedure, svc.CreateExpense, opts...),
		LedgerServicePreviewSplitProcedure:       connect.NewUnaryHandler(LedgerServicePreviewSplitProcedure, svc.PreviewSplit, opts...),
		LedgerServiceReverseExpenseProcedure:     connect.NewUnaryHandler(LedgerServiceReverseExpenseProcedure, svc.ReverseExpense, opts...),
		LedgerServiceListExpensesProcedure:       connect.NewUnaryHandler(LedgerServiceListExpensesProcedure, svc.ListExpenses, opts...),
		LedgerServiceGetBalancesProcedure:        connect.NewUnaryHandler(LedgerServiceGetBalancesProcedure, svc.GetBalances, opts...),
		LedgerServiceProposeSettlementProcedure:  connect.NewUnaryHandler(LedgerServiceProposeSettlementProcedure, svc.ProposeSettlement, opts...),
		LedgerServiceExecuteSettlementProcedure:  connect.NewUnaryHandler(LedgerServiceExecuteSettlementProcedure, svc.ExecuteSettlement, opts...),
		LedgerServiceSettleExpenseShareProcedure: connect.NewUnaryHandler(LedgerServiceSettleExpenseShareProcedure, svc.SettleExpenseShare, opts...),
		LedgerServiceListEntriesProcedure:        connect.NewUnaryHandler(LedgerServiceListEntriesProcedure, svc.ListEntries, opts...),
		LedgerServiceReconcileGroupProcedure:     connect.NewUnaryHandler(LedgerServiceReconcileGroupProcedure, svc.ReconcileGroup, opts...),
	}
	return "/" + LedgerServiceName + "/", route(routes)
}

// LedgerServiceClient calls a remote LedgerService.
type LedgerServiceClient interface {
	LedgerServiceHandler
}

// NewLedgerServiceClient creates a client for the LedgerService at baseURL.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) LedgerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &ledgerServiceClient{
		createExpense:      connect.NewClient[api.CreateExpenseRequest, api.CreateExpenseResponse](httpClient, baseURL+LedgerServiceCreateExpenseProcedure, opts...),
		previewSplit:       connect.NewClient[api.PreviewSplitRequest, api.PreviewSplitResponse](httpClient, baseURL+LedgerServicePreviewSplitProcedure, opts...),
		reverseExpense:     connect.NewClient[api.ReverseExpenseRequest, api.ReverseExpenseResponse](httpClient, baseURL+LedgerServiceReverseExpenseProcedure, opts...),
		listExpenses:       connect.NewClient[api.ListExpensesRequest, api.ListExpensesResponse](httpClient, baseURL+LedgerServiceListExpensesProcedure, opts...),
		getBalances:        connect.NewClient[api.GetBalancesRequest, api.GetBalancesResponse](httpClient, baseURL+LedgerServiceGetBalancesProcedure, opts...),
		proposeSettlement:  connect.NewClient[api.ProposeSettlementRequest, api.ProposeSettlementResponse](httpClient, baseURL+LedgerServiceProposeSettlementProcedure, opts...),
		executeSettlement:  connect.NewClient[api.ExecuteSettlementRequest, api.ExecuteSettlementResponse](httpClient, baseURL+LedgerServiceExecuteSettlementProcedure, opts...),
		settleExpenseShare: connect.NewClient[api.SettleExpenseShareRequest, api.SettleExpenseShareResponse](httpClient, baseURL+LedgerServiceSettleExpenseShareProcedure, opts...),
		listEntries:        connect.NewClient[api.ListEntriesRequest, api.ListEntriesResponse](httpClient, baseURL+LedgerServiceListEntriesProcedure, opts...),
		reconcileGroup:     connect.NewClient[api.ReconcileGroupRequest, api.ReconcileGroupResponse](httpClient, baseURL+LedgerServiceReconcileGroupProcedure, opts...),
	}
}

type ledgerServiceClient struct {
	createExpense      *connect.Client[api.CreateExpenseRequest, api.CreateExpenseResponse]
	previewSplit       *connect.Client[api.PreviewSplitRequest, api.PreviewSplitResponse]
	reverseExpense     *connect.Client[api.ReverseExpenseRequest, api.ReverseExpenseResponse]
	listExpenses       *connect.Client[api.ListExpensesRequest, api.ListExpensesResponse]
	getBalances        *connect.Client[api.GetBalancesRequest, api.GetBalancesResponse]
	proposeSettlement  *connect.Client[api.ProposeSettlementRequest, api.ProposeSettlementResponse]
	executeSettlement  *connect.Client[api.ExecuteSettlementRequest, api.ExecuteSettlementResponse]
	settleExpenseShare *connect.Client[api.SettleExpenseShareRequest, api.SettleExpenseShareResponse]
	listEntries        *connect.Client[api.ListEntriesRequest, api.ListEntriesResponse]
	reconcileGroup     *connect.Client[api.ReconcileGroupRequest, api.ReconcileGroupResponse]
}

func (c *ledgerServiceClient) CreateExpense(ctx context.Context, req *connect.Request[api.CreateExpenseRequest]) (*connect.Response[api.CreateExpenseResponse], error) {
	return c.createExpense.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) PreviewSplit(ctx context.Context, req *connect.Request[api.PreviewSplitRequest]) (*connect.Response[api.PreviewSplitResponse], error) {
	return c.previewSplit.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ReverseExpense(ctx context.Context, req *connect.Request[api.ReverseExpenseRequest]) (*connect.Response[api.ReverseExpenseResponse], error) {
	return c.reverseExpense.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ListExpenses(ctx context.Context, req *connect.Request[api.ListExpensesRequest]) (*connect.Response[api.ListExpensesResponse], error) {
	return c.listExpenses.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) GetBalances(ctx context.Context, req *connect.Request[api.GetBalancesRequest]) (*connect.Response[api.GetBalancesResponse], error) {
	return c.getBalances.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ProposeSettlement(ctx context.Context, req *connect.Request[api.ProposeSettlementRequest]) (*connect.Response[api.ProposeSettlementResponse], error) {
	return c.proposeSettlement.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ExecuteSettlement(ctx context.Context, req *connect.Request[api.ExecuteSettlementRequest]) (*connect.Response[api.ExecuteSettlementResponse], error) {
	return c.executeSettlement.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) SettleExpenseShare(ctx context.Context, req *connect.Request[api.SettleExpenseShareRequest]) (*connect.Response[api.SettleExpenseShareResponse], error) {
	return c.settleExpenseShare.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ListEntries(ctx context.Context, req *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error) {
	return c.listEntries.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ReconcileGroup(ctx context.Context, req *connect.Request[api.ReconcileGroupRequest]) (*connect.Response[api.ReconcileGroupResponse], error) {
	return c.reconcileGroup.CallUnary(ctx, req)
}
