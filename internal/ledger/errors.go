package ledger

import (
	"context"
	"errors"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

var (
	// ErrUnbalancedPosting is returned when a posting's deltas do not sum to
	// exactly zero, or when it has no deltas at all.
	ErrUnbalancedPosting = errors.New("posting deltas must sum to zero")

	// ErrUnknownMember is returned when a posting or request names someone
	// who is not a member of the group.
	ErrUnknownMember = errors.New("unknown member")

	// ErrUnbalancedLedger means a group's balances no longer sum to zero or no
	// longer match its log. The group refuses operations until reconciled.
	ErrUnbalancedLedger = calculator.ErrUnbalancedLedger

	// ErrLockTimeout is returned when a group's writer lock could not be
	// acquired in time. Callers may retry.
	ErrLockTimeout = errors.New("timed out waiting for group lock")

	ErrTransferNotFound = errors.New("settlement transfer not found")
	ErrMemberHasBalance = errors.New("member has a non-zero balance")
	ErrAlreadyReversed  = errors.New("expense already reversed")
	ErrAlreadySettled   = errors.New("share already settled")
	ErrDuplicateMember  = errors.New("member already in group")
	ErrCurrencyMismatch = errors.New("currency does not match the group currency")

	// ErrInvalidInput covers malformed requests that no more specific error
	// describes (blank names, non-positive transfers, ...).
	ErrInvalidInput = errors.New("invalid input")

	ErrGroupNotFound   = storage.ErrGroupNotFound
	ErrExpenseNotFound = storage.ErrExpenseNotFound
)

// Reason names the kind of err in upper snake case, for error details and
// metric labels. Unclassified errors are "INTERNAL".
func Reason(err error) string {
	switch {
	case errors.Is(err, calculator.ErrSplitMismatch):
		return "SPLIT_MISMATCH"
	case errors.Is(err, calculator.ErrInvalidPolicy):
		return "INVALID_POLICY"
	case errors.Is(err, ErrUnbalancedPosting):
		return "UNBALANCED_POSTING"
	case errors.Is(err, ErrUnknownMember):
		return "UNKNOWN_MEMBER"
	case errors.Is(err, money.ErrOverflow):
		return "OVERFLOW"
	case errors.Is(err, ErrUnbalancedLedger):
		return "UNBALANCED_LEDGER"
	case errors.Is(err, ErrLockTimeout):
		return "LOCK_TIMEOUT"
	case errors.Is(err, ErrGroupNotFound):
		return "GROUP_NOT_FOUND"
	case errors.Is(err, ErrExpenseNotFound):
		return "EXPENSE_NOT_FOUND"
	case errors.Is(err, ErrTransferNotFound):
		return "TRANSFER_NOT_FOUND"
	case errors.Is(err, ErrMemberHasBalance):
		return "MEMBER_HAS_BALANCE"
	case errors.Is(err, ErrAlreadyReversed):
		return "ALREADY_REVERSED"
	case errors.Is(err, ErrAlreadySettled):
		return "ALREADY_SETTLED"
	case errors.Is(err, ErrDuplicateMember):
		return "DUPLICATE_MEMBER"
	case errors.Is(err, ErrCurrencyMismatch):
		return "CURRENCY_MISMATCH"
	case errors.Is(err, money.ErrInvalidCurrency):
		return "INVALID_CURRENCY"
	case errors.Is(err, money.ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	default:
		return "INTERNAL"
	}
}
