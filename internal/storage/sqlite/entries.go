package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

// AppendEntry writes a log entry, its deltas and the optional expense in one
// transaction.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *models.LogEntry, expense *models.Expense) (int64, error) {
	if entry.Posting.ID == "" {
		entry.Posting.ID = uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UnixMilli()
	}
	groupID := entry.Posting.GroupID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE((SELECT MAX(seq) FROM log_entries WHERE group_id = ?), 0) + 1
		 FROM groups WHERE id = ?`,
		groupID, groupID,
	).Scan(&next)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read log position: %w", err)
	}
	if entry.Seq != next {
		return 0, fmt.Errorf("%w: group %s got seq %d, next is %d", storage.ErrSeqConflict, groupID, entry.Seq, next)
	}

	p := entry.Posting
	_, err = tx.ExecContext(ctx,
		`INSERT INTO log_entries (id, group_id, seq, kind, ref, memo, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, groupID, entry.Seq, string(p.Kind), p.Ref, p.Memo, entry.Actor, entry.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert log entry: %w", err)
	}

	for i, d := range p.Deltas {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO entry_deltas (entry_id, position, member_id, amount) VALUES (?, ?, ?, ?)",
			p.ID, i, d.MemberID, int64(d.Amount),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert delta: %w", err)
		}
	}

	if expense != nil {
		if err := insertExpense(ctx, tx, expense); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry.Seq, nil
}

// ListEntries returns a group's log entries after afterSeq, in order.
func (s *SQLiteStore) ListEntries(ctx context.Context, groupID string, afterSeq int64) ([]models.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.seq, e.kind, e.ref, e.memo, e.actor, e.created_at, d.member_id, d.amount
		 FROM log_entries e
		 JOIN entry_deltas d ON d.entry_id = e.id
		 WHERE e.group_id = ? AND e.seq > ?
		 ORDER BY e.seq, d.position`,
		groupID, afterSeq,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var (
			e        models.LogEntry
			kind     string
			memberID string
			amount   int64
		)
		if err := rows.Scan(&e.Posting.ID, &e.Seq, &kind, &e.Posting.Ref, &e.Posting.Memo,
			&e.Actor, &e.CreatedAt, &memberID, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		if n := len(entries); n == 0 || entries[n-1].Seq != e.Seq {
			e.Posting.GroupID = groupID
			e.Posting.Kind = models.EntryKind(kind)
			entries = append(entries, e)
		}
		last := &entries[len(entries)-1]
		last.Posting.Deltas = append(last.Posting.Deltas, models.Delta{
			MemberID: memberID,
			Amount:   money.Money(amount),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log entries: %w", err)
	}
	return entries, nil
}
