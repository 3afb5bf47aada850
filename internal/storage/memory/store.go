// Package memory provides an in-process implementation of storage.Store.
// Data lives only as long as the process.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps groups, log entries and expenses in maps guarded by one lock.
type Store struct {
	mu sync.RWMutex

	groups     map[string]*models.Group
	groupOrder []string

	// entries[groupID] is the group's log in sequence order
	entries map[string][]models.LogEntry

	expenses     map[string]*models.Expense
	groupExpense map[string][]string
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		groups:       make(map[string]*models.Group),
		entries:      make(map[string][]models.LogEntry),
		expenses:     make(map[string]*models.Expense),
		groupExpense: make(map[string][]string),
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) CreateGroup(_ context.Context, group *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().UnixMilli()
	}
	if _, exists := s.groups[group.ID]; exists {
		return fmt.Errorf("group already exists: %s", group.ID)
	}
	s.groups[group.ID] = group.Clone()
	s.groupOrder = append(s.groupOrder, group.ID)
	return nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	return g.Clone(), nil
}

func (s *Store) ListGroups(_ context.Context) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make([]*models.Group, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		groups = append(groups, s.groups[id].Clone())
	}
	return groups, nil
}

func (s *Store) AddGroupMembers(_ context.Context, groupID string, members []models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	for _, m := range members {
		if g.HasMember(m.ID) {
			return fmt.Errorf("member already in group: %s", m.ID)
		}
	}
	g.Members = append(g.Members, members...)
	return nil
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, memberID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	i := g.MemberIndex(memberID)
	if i < 0 {
		return fmt.Errorf("member not in group: %s", memberID)
	}
	g.Members = append(g.Members[:i], g.Members[i+1:]...)
	return nil
}

func (s *Store) AppendEntry(_ context.Context, entry *models.LogEntry, expense *models.Expense) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groupID := entry.Posting.GroupID
	if _, ok := s.groups[groupID]; !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrGroupNotFound, groupID)
	}
	log := s.entries[groupID]
	if want := int64(len(log)) + 1; entry.Seq != want {
		return 0, fmt.Errorf("%w: group %s got seq %d, next is %d", storage.ErrSeqConflict, groupID, entry.Seq, want)
	}
	if entry.Posting.ID == "" {
		entry.Posting.ID = uuid.New().String()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = time.Now().UnixMilli()
	}

	stored := *entry
	stored.Posting.Deltas = append([]models.Delta(nil), entry.Posting.Deltas...)
	s.entries[groupID] = append(log, stored)

	if expense != nil {
		e := *expense
		e.Shares = append([]models.ExpenseShare(nil), expense.Shares...)
		s.expenses[e.ID] = &e
		s.groupExpense[groupID] = append(s.groupExpense[groupID], e.ID)
	}
	return entry.Seq, nil
}

func (s *Store) ListEntries(_ context.Context, groupID string, afterSeq int64) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.entries[groupID]
	if afterSeq < 0 {
		afterSeq = 0
	}
	if afterSeq >= int64(len(log)) {
		return nil, nil
	}
	out := make([]models.LogEntry, 0, int64(len(log))-afterSeq)
	for _, e := range log[afterSeq:] {
		e.Posting.Deltas = append([]models.Delta(nil), e.Posting.Deltas...)
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, expenseID string) (*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[expenseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrExpenseNotFound, expenseID)
	}
	c := *e
	c.Shares = append([]models.ExpenseShare(nil), e.Shares...)
	return &c, nil
}

func (s *Store) ListExpensesByGroup(_ context.Context, groupID string) ([]*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.groupExpense[groupID]
	out := make([]*models.Expense, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		c := *s.expenses[ids[i]]
		c.Shares = append([]models.ExpenseShare(nil), c.Shares...)
		out = append(out, &c)
	}
	// newest first; later inserts win ties
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}
