package models

import "github.com/mmynk/settleup/internal/money"

// EntryKind classifies why a posting was made.
type EntryKind string

const (
	// EntryExpense credits the payer and debits each participant's share.
	EntryExpense EntryKind = "expense"
	// EntryReversal negates a previous expense posting.
	EntryReversal EntryKind = "reversal"
	// EntrySettlement records a payment from a debtor to a creditor.
	EntrySettlement EntryKind = "settlement"
)

// Delta is a signed change to one member's balance.
// Positive means the group owes the member more.
type Delta struct {
	MemberID string
	Amount   money.Money
}

// Posting is an atomic set of deltas that sums to exactly zero.
type Posting struct {
	// ID is the unique identifier for the posting (UUID format).
	ID string

	// GroupID is the group whose ledger the posting applies to.
	GroupID string

	// Kind says what produced the posting.
	Kind EntryKind

	// Ref points at the source: the expense ID for expenses, reversals and
	// settlements of one participant's share, the proposed transfer ID for
	// planned settlements (empty for ad-hoc ones).
	Ref string

	// Memo is optional free text (settlement note, reversal reason).
	Memo string

	Deltas []Delta
}

// LogEntry is a posting as recorded in a group's transaction log.
type LogEntry struct {
	// Seq is the position in the group's log, starting at 1.
	Seq int64

	Posting Posting

	// Actor is who submitted the posting, if known.
	Actor string

	// CreatedAt is the Unix timestamp in milliseconds when the entry was appended.
	CreatedAt int64
}

// SettlementTransfer is a proposed or ad-hoc payment between two members.
type SettlementTransfer struct {
	// ID identifies a proposed transfer; empty for ad-hoc transfers.
	ID string

	// GroupID is the group the transfer settles.
	GroupID string

	// FromMemberID pays (debtor settling up).
	FromMemberID string

	// ToMemberID receives (creditor being paid).
	ToMemberID string

	// Amount is the payment amount, always positive.
	Amount money.Money

	// Currency must be the group's currency; empty means the same.
	Currency string
}
