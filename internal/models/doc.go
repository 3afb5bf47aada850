// Package models defines the core domain models for settleup.
//
// # Models
//
//   - Group: members sharing one ledger in one currency
//   - Member: a participant in a group, identified by an ID unique in the group
//   - Expense: a payment by one member split among participants
//   - Posting: a zero-sum set of balance deltas, the only way balances change
//   - LogEntry: a posting as recorded in a group's append-only transaction log
//   - SettlementTransfer: a proposed payment from a debtor to a creditor
//
// # Design Principles
//
// 1. **Integer money**: every amount is money.Money in minor units
// 2. **Append-only**: expenses and log entries are never edited; corrections
//    are reversal postings
// 3. **Avoid circular references**: use ID strings instead of pointers for
//    relationships
// 4. **Derived balances**: balances are never stored, they are folded from
//    the log
package models
