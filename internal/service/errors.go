package service

import (
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/settleup/internal/ledger"
	"github.com/mmynk/settleup/pkg/api"
)

type errorKind struct {
	code    connect.Code
	message string
}

var errorKinds = map[string]errorKind{
	"SPLIT_MISMATCH":     {connect.CodeInvalidArgument, "amounts must sum to the total"},
	"INVALID_POLICY":     {connect.CodeInvalidArgument, "invalid split"},
	"UNBALANCED_POSTING": {connect.CodeInvalidArgument, "posting does not balance"},
	"UNKNOWN_MEMBER":     {connect.CodeInvalidArgument, "not a member of this group"},
	"OVERFLOW":           {connect.CodeInvalidArgument, "amount is too large"},
	"CURRENCY_MISMATCH":  {connect.CodeInvalidArgument, "currency does not match the group"},
	"INVALID_CURRENCY":   {connect.CodeInvalidArgument, "unknown currency"},
	"INVALID_AMOUNT":     {connect.CodeInvalidArgument, "invalid amount"},
	"INVALID_INPUT":      {connect.CodeInvalidArgument, "invalid request"},
	"GROUP_NOT_FOUND":    {connect.CodeNotFound, "group not found"},
	"EXPENSE_NOT_FOUND":  {connect.CodeNotFound, "expense not found"},
	"TRANSFER_NOT_FOUND": {connect.CodeNotFound, "transfer not found, it was executed, replaced or outdated by newer postings"},
	"UNBALANCED_LEDGER":  {connect.CodeFailedPrecondition, "group ledger is inconsistent and needs reconciling"},
	"MEMBER_HAS_BALANCE": {connect.CodeFailedPrecondition, "member must settle up before leaving"},
	"ALREADY_REVERSED":   {connect.CodeFailedPrecondition, "expense was already reversed"},
	"ALREADY_SETTLED":    {connect.CodeFailedPrecondition, "share was already paid"},
	"LOCK_TIMEOUT":       {connect.CodeUnavailable, "group is busy, try again"},
	"DUPLICATE_MEMBER":   {connect.CodeAlreadyExists, "member already in group"},
	"CANCELED":           {connect.CodeCanceled, "request canceled"},
	"DEADLINE_EXCEEDED":  {connect.CodeDeadlineExceeded, "request timed out"},
}

// toConnectError converts an engine error into a Connect error carrying a
// reason detail. Internal errors are logged and hidden from the caller.
func toConnectError(op string, err error) *connect.Error {
	reason := ledger.Reason(err)
	kind, ok := errorKinds[reason]

	var connectErr *connect.Error
	if !ok {
		slog.Error(op+" failed", "error", err)
		connectErr = connect.NewError(connect.CodeInternal, errors.New("internal error"))
	} else {
		slog.Debug(op+" rejected", "reason", reason, "error", err)
		connectErr = connect.NewError(kind.code, errors.New(kind.message+": "+err.Error()))
	}

	if detail, derr := api.NewReasonDetail(reason); derr == nil {
		connectErr.AddDetail(detail)
	}
	return connectErr
}

