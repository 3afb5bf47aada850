// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/settleup/internal/models"
)

var (
	// ErrGroupNotFound is returned when a group ID does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrExpenseNotFound is returned when an expense ID does not exist.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrSeqConflict is returned when an entry's sequence number is already
	// taken in the group's log.
	ErrSeqConflict = errors.New("log sequence conflict")
)

// GroupStore persists groups and their membership.
type GroupStore interface {
	// CreateGroup persists a new group. The group.ID and CreatedAt fields are
	// populated by the store when empty.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with its members in insertion order.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroups retrieves all groups.
	ListGroups(ctx context.Context) ([]*models.Group, error)

	// AddGroupMembers appends members to a group.
	AddGroupMembers(ctx context.Context, groupID string, members []models.Member) error

	// RemoveGroupMember removes a member from a group.
	RemoveGroupMember(ctx context.Context, groupID, memberID string) error
}

// Log is a group's append-only transaction log. There is no way to edit or
// delete an entry.
type Log interface {
	// AppendEntry records entry at entry.Seq, which must be exactly one past
	// the group's last sequence number. When expense is non-nil it is stored
	// in the same transaction. Returns the sequence number.
	AppendEntry(ctx context.Context, entry *models.LogEntry, expense *models.Expense) (int64, error)

	// ListEntries returns the group's entries with Seq > afterSeq in order.
	ListEntries(ctx context.Context, groupID string, afterSeq int64) ([]models.LogEntry, error)
}

// ExpenseStore reads expenses recorded through AppendEntry.
type ExpenseStore interface {
	// GetExpense retrieves an expense by ID.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// ListExpensesByGroup retrieves a group's expenses, newest first.
	ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error)
}

// Store defines the interface for all storage operations.
// This abstraction allows swapping storage backends (SQLite, in-memory, ...)
// without changing the ledger or service layers.
type Store interface {
	GroupStore
	Log
	ExpenseStore

	// Close releases any resources held by the store.
	Close() error
}
