// Package api defines the messages of the settleup.v1 Connect services.
//
// Messages travel as JSON. Every amount is an integer count of minor units
// with an explicit ISO 4217 currency code; floats never cross the wire.
// Every created_at is a Unix timestamp in milliseconds.
package api

// Amount is money in minor units (cents for USD, yen for JPY).
type Amount struct {
	MinorUnits int64  `json:"minor_units"`
	Currency   string `json:"currency"`
}

type Member struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type Group struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Currency  string   `json:"currency"`
	Members   []Member `json:"members"`
	CreatedAt int64    `json:"created_at"`
}

// Split kinds accepted in CreateExpenseRequest.Split. Empty means equal.
const (
	SplitEqual      = "equal"
	SplitPercentage = "percentage"
	SplitExact      = "exact"
	SplitShares     = "shares"
)

// Share is one participant's portion of an expense.
type Share struct {
	MemberID string `json:"member_id"`
	Amount   Amount `json:"amount"`

	// Weight is the policy parameter that produced the share; empty for equal
	// splits.
	Weight string `json:"weight,omitempty"`

	// Paid is set on stored expenses once the member owes the payer nothing
	// more for this expense. The payer's own share is always paid.
	Paid bool `json:"paid,omitempty"`
}

type Expense struct {
	ID          string  `json:"id"`
	GroupID     string  `json:"group_id"`
	PayerID     string  `json:"payer_id"`
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Total       Amount  `json:"total"`
	Split       string  `json:"split"`
	Shares      []Share `json:"shares"`
	PostingID   string  `json:"posting_id"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   int64   `json:"created_at"`
	Reversed    bool    `json:"reversed"`

	// Status is PENDING, PARTIALLY_SETTLED or SETTLED.
	Status string `json:"status"`
}

// Delta is a signed balance change. Positive means the group owes the member
// more.
type Delta struct {
	MemberID string `json:"member_id"`
	Amount   Amount `json:"amount"`
}

// Entry is one record of a group's transaction log.
type Entry struct {
	Seq       int64   `json:"seq"`
	PostingID string  `json:"posting_id"`
	Kind      string  `json:"kind"`
	Ref       string  `json:"ref,omitempty"`
	Memo      string  `json:"memo,omitempty"`
	Actor     string  `json:"actor,omitempty"`
	CreatedAt int64   `json:"created_at"`
	Deltas    []Delta `json:"deltas"`
}

type Balance struct {
	MemberID string `json:"member_id"`
	Amount   Amount `json:"amount"`
}

// Transfer is a payment from a debtor to a creditor. Proposed transfers have
// an ID; ad-hoc ones do not.
type Transfer struct {
	ID           string `json:"id,omitempty"`
	FromMemberID string `json:"from_member_id"`
	ToMemberID   string `json:"to_member_id"`
	Amount       Amount `json:"amount"`
}

// GroupService

type CreateGroupRequest struct {
	Name     string   `json:"name"`
	Currency string   `json:"currency"`
	Members  []Member `json:"members"`
}

type CreateGroupResponse struct {
	Group Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"group_id"`
}

type GetGroupResponse struct {
	Group Group `json:"group"`
}

type ListGroupsRequest struct{}

type ListGroupsResponse struct {
	Groups []Group `json:"groups"`
}

type AddMemberRequest struct {
	GroupID string `json:"group_id"`
	Member  Member `json:"member"`
}

type AddMemberResponse struct {
	Member Member `json:"member"`
}

type RemoveMemberRequest struct {
	GroupID  string `json:"group_id"`
	MemberID string `json:"member_id"`
}

type RemoveMemberResponse struct{}

// LedgerService

// CreateExpenseRequest records an expense. Weights are keyed by member ID:
// decimal percentages for "percentage", positive integers for "shares" and
// minor units for "exact". They are ignored for "equal".
type CreateExpenseRequest struct {
	GroupID      string            `json:"group_id"`
	PayerID      string            `json:"payer_id"`
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	Total        Amount            `json:"total"`
	Split        string            `json:"split,omitempty"`
	Participants []string          `json:"participants"`
	Weights      map[string]string `json:"weights,omitempty"`
}

type CreateExpenseResponse struct {
	Expense Expense `json:"expense"`
}

type PreviewSplitRequest struct {
	GroupID      string            `json:"group_id"`
	Total        Amount            `json:"total"`
	Split        string            `json:"split,omitempty"`
	Participants []string          `json:"participants"`
	Weights      map[string]string `json:"weights,omitempty"`
}

type PreviewSplitResponse struct {
	Shares []Share `json:"shares"`
}

type ReverseExpenseRequest struct {
	GroupID   string `json:"group_id"`
	ExpenseID string `json:"expense_id"`
	Reason    string `json:"reason,omitempty"`
}

type ReverseExpenseResponse struct {
	Entry Entry `json:"entry"`
}

// ListExpensesRequest lists a group's expenses, newest first. A non-empty
// MemberID keeps only expenses that member paid for or shares in.
type ListExpensesRequest struct {
	GroupID  string `json:"group_id"`
	MemberID string `json:"member_id,omitempty"`
}

type ListExpensesResponse struct {
	Expenses []Expense `json:"expenses"`
}

type GetBalancesRequest struct {
	GroupID string `json:"group_id"`
}

type GetBalancesResponse struct {
	Balances []Balance `json:"balances"`

	// Seq is the last log entry the balances include.
	Seq int64 `json:"seq"`
}

type ProposeSettlementRequest struct {
	GroupID string `json:"group_id"`
}

type ProposeSettlementResponse struct {
	Transfers []Transfer `json:"transfers"`
}

// ExecuteSettlementRequest posts either a proposed transfer (TransferID) or
// an ad-hoc one (Transfer). Exactly one must be set.
type ExecuteSettlementRequest struct {
	GroupID    string    `json:"group_id"`
	TransferID string    `json:"transfer_id,omitempty"`
	Transfer   *Transfer `json:"transfer,omitempty"`
	Memo       string    `json:"memo,omitempty"`
}

type ExecuteSettlementResponse struct {
	PostingID string `json:"posting_id"`
	Entry     Entry  `json:"entry"`
}

// SettleExpenseShareRequest records that MemberID paid the expense's payer
// the rest of their share.
type SettleExpenseShareRequest struct {
	GroupID   string `json:"group_id"`
	ExpenseID string `json:"expense_id"`
	MemberID  string `json:"member_id"`
	Memo      string `json:"memo,omitempty"`
}

type SettleExpenseShareResponse struct {
	Entry   Entry   `json:"entry"`
	Expense Expense `json:"expense"`
}

type ListEntriesRequest struct {
	GroupID  string `json:"group_id"`
	AfterSeq int64  `json:"after_seq,omitempty"`
}

type ListEntriesResponse struct {
	Entries []Entry `json:"entries"`
}

type ReconcileGroupRequest struct {
	GroupID string `json:"group_id"`
}

type ReconcileGroupResponse struct {
	Seq int64 `json:"seq"`
}
