package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

const expenseColumns = `id, group_id, entry_id, payer_id, title, description, total, currency,
	split_kind, created_by, created_at`

func insertExpense(ctx context.Context, tx *sql.Tx, e *models.Expense) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO expenses (`+expenseColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.GroupID, e.PostingID, e.PayerID, e.Title, e.Description, int64(e.Total),
		e.Currency, string(e.Split), e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	for i, sh := range e.Shares {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_shares (expense_id, position, member_id, amount, weight) VALUES (?, ?, ?, ?, ?)",
			e.ID, i, sh.MemberID, int64(sh.Amount), sh.Weight,
		)
		if err != nil {
			return fmt.Errorf("failed to insert expense share: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*models.Expense, error) {
	var (
		e     models.Expense
		total int64
		split string
	)
	err := row.Scan(&e.ID, &e.GroupID, &e.PostingID, &e.PayerID, &e.Title, &e.Description,
		&total, &e.Currency, &split, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Total = money.Money(total)
	e.Split = calculator.SplitKind(split)
	return &e, nil
}

// GetExpense retrieves an expense with its shares.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = ?", expenseID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", storage.ErrExpenseNotFound, expenseID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}

	shares, err := s.loadShares(ctx, []string{e.ID})
	if err != nil {
		return nil, err
	}
	e.Shares = shares[e.ID]
	return e, nil
}

// ListExpensesByGroup retrieves all of a group's expenses, newest first.
func (s *SQLiteStore) ListExpensesByGroup(ctx context.Context, groupID string) ([]*models.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE group_id = ? ORDER BY created_at DESC, rowid DESC",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	var expenses []*models.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expenses: %w", err)
	}
	if len(expenses) == 0 {
		return expenses, nil
	}

	ids := make([]string, len(expenses))
	for i, e := range expenses {
		ids[i] = e.ID
	}
	shares, err := s.loadShares(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range expenses {
		e.Shares = shares[e.ID]
	}
	return expenses, nil
}

// loadShares fetches the shares of every listed expense in one query.
func (s *SQLiteStore) loadShares(ctx context.Context, expenseIDs []string) (map[string][]models.ExpenseShare, error) {
	args := make([]any, len(expenseIDs))
	for i, id := range expenseIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT expense_id, member_id, amount, weight FROM expense_shares
		 WHERE expense_id IN (`+placeholders(len(expenseIDs))+`)
		 ORDER BY expense_id, position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get expense shares: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.ExpenseShare, len(expenseIDs))
	for rows.Next() {
		var (
			expenseID string
			sh        models.ExpenseShare
			amount    int64
		)
		if err := rows.Scan(&expenseID, &sh.MemberID, &amount, &sh.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan expense share: %w", err)
		}
		sh.Amount = money.Money(amount)
		out[expenseID] = append(out[expenseID], sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expense shares: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
