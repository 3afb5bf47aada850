package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mmynk/settleup/internal/calculator"
	"github.com/mmynk/settleup/internal/events"
	"github.com/mmynk/settleup/internal/metrics"
	"github.com/mmynk/settleup/internal/models"
	"github.com/mmynk/settleup/internal/money"
	"github.com/mmynk/settleup/internal/storage"
)

const (
	// DefaultLockTimeout bounds how long a writer waits for a group's lock.
	DefaultLockTimeout = 2 * time.Second

	replayConcurrency = 8
)

// Snapshot is an immutable view of one group, swapped atomically after every
// commit. Readers must not modify it.
type Snapshot struct {
	GroupID   string
	Name      string
	Currency  string
	CreatedAt int64
	Members   []models.Member

	// Seq is the last log entry folded into Balances.
	Seq      int64
	Balances map[string]money.Money

	// Reversed holds the IDs of expenses that have a reversal entry.
	Reversed map[string]bool

	// Settled maps expense ID to what each participant has paid toward it.
	// The inner maps are shared between snapshots and never modified.
	Settled map[string]map[string]money.Money

	Halted bool
}

// Group rebuilds the group record shown by the snapshot.
func (s *Snapshot) Group() *models.Group {
	return &models.Group{
		ID:        s.GroupID,
		Name:      s.Name,
		Currency:  s.Currency,
		Members:   append([]models.Member(nil), s.Members...),
		CreatedAt: s.CreatedAt,
	}
}

// book is everything the engine keeps for one group. Books share nothing, so
// writers on different groups never wait for each other.
type book struct {
	id   string
	sem  *semaphore.Weighted
	snap atomic.Pointer[Snapshot]

	// guarded by sem
	group    *models.Group
	ledger   *Ledger
	seq      int64
	expenses map[string]models.Posting
	reversed map[string]bool
	settled  map[string]map[string]money.Money
	halted   bool

	propMu    sync.Mutex
	proposals map[string]models.SettlementTransfer
	// proposedAt is the seq the proposals were planned against. Executing
	// one of them advances it; any other commit leaves the proposals stale.
	proposedAt int64
}

func newBook(id string) *book {
	return &book{
		id:        id,
		sem:       semaphore.NewWeighted(1),
		expenses:  make(map[string]models.Posting),
		reversed:  make(map[string]bool),
		settled:   make(map[string]map[string]money.Money),
		proposals: make(map[string]models.SettlementTransfer),
	}
}

// rebuild replaces the book's state with a replay of entries. On error the
// book is left unchanged.
func (b *book) rebuild(group *models.Group, entries []models.LogEntry) error {
	var (
		seq      int64
		expenses = make(map[string]models.Posting)
		reversed = make(map[string]bool)
		settled  = make(map[string]map[string]money.Money)
	)
	for _, e := range entries {
		if e.Seq != seq+1 {
			return fmt.Errorf("%w: log gap after seq %d (next is %d)", ErrUnbalancedLedger, seq, e.Seq)
		}
		seq = e.Seq
		track(e.Posting, expenses, reversed, settled)
	}

	folded, err := Fold(entries)
	if err != nil {
		return err
	}
	live, err := Restore(group.MemberIDs(), folded)
	if err != nil {
		return err
	}

	b.group = group
	b.ledger = live
	b.seq = seq
	b.expenses = expenses
	b.reversed = reversed
	b.settled = settled
	return nil
}

// track records what p means for the expenses it references.
func track(p models.Posting, expenses map[string]models.Posting, reversed map[string]bool, settled map[string]map[string]money.Money) {
	switch p.Kind {
	case models.EntryExpense:
		expenses[p.Ref] = p
	case models.EntryReversal:
		reversed[p.Ref] = true
	case models.EntrySettlement:
		if _, ok := expenses[p.Ref]; !ok {
			return
		}
		for _, d := range p.Deltas {
			if d.Amount.IsPositive() {
				// Copy so snapshots holding the old map never see the change.
				next := make(map[string]money.Money, len(settled[p.Ref])+1)
				for id, amt := range settled[p.Ref] {
					next[id] = amt
				}
				next[d.MemberID] += d.Amount
				settled[p.Ref] = next
			}
		}
	}
}

func (b *book) publishSnapshot() {
	reversed := make(map[string]bool, len(b.reversed))
	for id := range b.reversed {
		reversed[id] = true
	}
	settled := make(map[string]map[string]money.Money, len(b.settled))
	for id, paid := range b.settled {
		settled[id] = paid
	}
	b.snap.Store(&Snapshot{
		GroupID:   b.group.ID,
		Name:      b.group.Name,
		Currency:  b.group.Currency,
		CreatedAt: b.group.CreatedAt,
		Members:   append([]models.Member(nil), b.group.Members...),
		Seq:       b.seq,
		Balances:  b.ledger.Balances(),
		Reversed:  reversed,
		Settled:   settled,
		Halted:    b.halted,
	})
}

func (b *book) dropProposals() {
	b.propMu.Lock()
	defer b.propMu.Unlock()
	b.proposals = make(map[string]models.SettlementTransfer)
	b.proposedAt = 0
}

// Engine owns the live ledgers of all groups on top of a storage.Store.
// It is safe for concurrent use.
type Engine struct {
	store       storage.Store
	publisher   events.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	lockTimeout time.Duration
	now         func() time.Time

	mu    sync.RWMutex
	books map[string]*book
}

// Option configures an Engine.
type Option func(*Engine)

// WithLockTimeout sets how long writers wait for a group's lock.
func WithLockTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.lockTimeout = d
		}
	}
}

// WithPublisher sets where committed postings are announced.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithMetrics sets the collectors the engine records into.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine. Call Open to load existing groups eagerly;
// otherwise each group is replayed on first use.
func NewEngine(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		publisher:   events.Noop{},
		logger:      slog.Default(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
		books:       make(map[string]*book),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open replays every group's log in parallel. A group whose log does not
// replay cleanly is halted; only storage failures make Open fail.
func (e *Engine) Open(ctx context.Context) error {
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	var (
		mu     sync.Mutex
		loaded = make(map[string]*book, len(groups))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(replayConcurrency)
	for _, group := range groups {
		g.Go(func() error {
			b, err := e.load(gctx, group)
			if err != nil {
				return err
			}
			mu.Lock()
			loaded[group.ID] = b
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	halted := 0
	e.mu.Lock()
	for id, b := range loaded {
		e.books[id] = b
		if b.halted {
			halted++
		}
	}
	e.mu.Unlock()

	e.logger.Info("Ledger opened", "groups", len(loaded), "halted", halted)
	return nil
}

func (e *Engine) load(ctx context.Context, group *models.Group) (*book, error) {
	entries, err := e.store.ListEntries(ctx, group.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to replay group %s: %w", group.ID, err)
	}
	b := newBook(group.ID)
	if err := b.rebuild(group, entries); err != nil {
		b.group = group
		b.ledger = New(group.MemberIDs())
		e.halt(b, err)
		return b, nil
	}
	b.publishSnapshot()
	return b, nil
}

// book returns the group's book, replaying it from the store on first use.
func (e *Engine) book(ctx context.Context, groupID string) (*book, error) {
	e.mu.RLock()
	b := e.books[groupID]
	e.mu.RUnlock()
	if b != nil {
		return b, nil
	}

	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	loaded, err := e.load(ctx, group)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.books[groupID]; b != nil {
		return b, nil
	}
	e.books[groupID] = loaded
	return loaded, nil
}

// snapshot returns the group's current snapshot, refusing halted groups.
func (e *Engine) snapshot(ctx context.Context, groupID string) (*Snapshot, error) {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return nil, err
	}
	snap := b.snap.Load()
	if snap.Halted {
		return nil, haltedError(groupID)
	}
	return snap, nil
}

func (s *Snapshot) summary(exp *models.Expense) models.ExpenseSummary {
	return models.ExpenseSummary{Expense: *exp, Reversed: s.Reversed[exp.ID], Settled: s.Settled[exp.ID]}
}

func haltedError(groupID string) error {
	return fmt.Errorf("%w: group %s is halted until reconciled", ErrUnbalancedLedger, groupID)
}

// lock acquires b's writer lock. The wait is bounded by the earlier of the
// lock timeout and ctx's deadline; only cancellation returns ctx's error.
func (e *Engine) lock(ctx context.Context, b *book) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, e.lockTimeout)
	defer cancel()

	start := time.Now()
	err := b.sem.Acquire(lockCtx, 1)
	e.metrics.LockWaited(time.Since(start))
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		e.metrics.LockTimedOut()
		return nil, fmt.Errorf("%w: group %s", ErrLockTimeout, b.id)
	}
	return func() { b.sem.Release(1) }, nil
}

// write runs fn under the group's writer lock. The entry fn commits, if any,
// is announced after the lock is released.
func (e *Engine) write(ctx context.Context, groupID string, fn func(b *book) (*models.LogEntry, error)) (*models.LogEntry, error) {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return nil, err
	}
	release, err := e.lock(ctx, b)
	if err != nil {
		return nil, err
	}

	var (
		entry    *models.LogEntry
		currency string
	)
	if b.halted {
		err = haltedError(groupID)
	} else {
		entry, err = fn(b)
		currency = b.group.Currency
	}
	release()

	if err != nil {
		e.metrics.PostFailed(strings.ToLower(Reason(err)))
		return nil, err
	}
	if entry != nil {
		e.announce(ctx, entry, currency)
	}
	return entry, nil
}

// commit validates posting against the live ledger, appends it to the log and
// applies it. Nothing changes when validation or the append fails. The
// caller holds b's lock.
func (e *Engine) commit(ctx context.Context, b *book, posting models.Posting, actor string, expense *models.Expense) (*models.LogEntry, error) {
	posting.GroupID = b.id
	if err := b.ledger.Check(posting); err != nil {
		return nil, err
	}
	if posting.ID == "" {
		posting.ID = uuid.New().String()
	}
	if expense != nil {
		expense.PostingID = posting.ID
	}

	entry := &models.LogEntry{
		Seq:       b.seq + 1,
		Posting:   posting,
		Actor:     actor,
		CreatedAt: e.now().UnixMilli(),
	}
	if _, err := e.store.AppendEntry(ctx, entry, expense); err != nil {
		if errors.Is(err, storage.ErrSeqConflict) {
			// Someone else wrote to this group's log.
			e.halt(b, err)
			return nil, fmt.Errorf("%w: %w", ErrUnbalancedLedger, err)
		}
		return nil, fmt.Errorf("failed to append entry: %w", err)
	}
	b.seq = entry.Seq

	if err := b.ledger.Apply(entry.Posting); err != nil {
		e.halt(b, err)
		return nil, fmt.Errorf("%w: applying committed entry %d: %v", ErrUnbalancedLedger, entry.Seq, err)
	}
	if sum := b.ledger.Sum(); sum.Sign() != 0 {
		err := fmt.Errorf("%w: balances sum to %s after entry %d", ErrUnbalancedLedger, sum, entry.Seq)
		e.halt(b, err)
		return nil, err
	}

	track(entry.Posting, b.expenses, b.reversed, b.settled)
	b.publishSnapshot()

	e.metrics.PostingCommitted(string(posting.Kind))
	e.logger.Debug("Posting committed",
		"group_id", b.id,
		"seq", entry.Seq,
		"kind", posting.Kind,
		"posting_id", posting.ID,
	)
	return entry, nil
}

// halt marks b as refusing operations until Reconcile succeeds.
func (e *Engine) halt(b *book, cause error) {
	if !b.halted {
		b.halted = true
		e.metrics.GroupHalted()
	}
	b.publishSnapshot()
	e.logger.Error("Group ledger halted", "group_id", b.id, "error", cause)
}

func (e *Engine) announce(ctx context.Context, entry *models.LogEntry, currency string) {
	event := events.NewPostingCommitted(entry, currency)
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.metrics.PublishFailed()
		e.logger.Error("Failed to publish posting event",
			"group_id", event.GroupID,
			"seq", event.Seq,
			"error", err,
		)
	}
}

// CreateGroup creates a group with its initial members. Members without an
// ID get a generated one.
func (e *Engine) CreateGroup(ctx context.Context, name, currency string, members []models.Member) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	cur, err := money.ParseCurrency(currency)
	if err != nil {
		return nil, err
	}
	members, err = normalizeMembers(members, nil)
	if err != nil {
		return nil, err
	}

	group := &models.Group{Name: name, Currency: cur.Code(), Members: members, CreatedAt: e.now().UnixMilli()}
	if err := e.store.CreateGroup(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	b := newBook(group.ID)
	if err := b.rebuild(group.Clone(), nil); err != nil {
		return nil, err
	}
	b.publishSnapshot()

	e.mu.Lock()
	e.books[group.ID] = b
	e.mu.Unlock()

	e.logger.Info("Group created", "group_id", group.ID, "currency", group.Currency, "members", len(members))
	return group, nil
}

// GetGroup returns the group as of its latest commit. It works on halted
// groups so they can be inspected.
func (e *Engine) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return b.snap.Load().Group(), nil
}

// ListGroups returns every stored group.
func (e *Engine) ListGroups(ctx context.Context) ([]*models.Group, error) {
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return groups, nil
}

// AddMember appends a member to the group at a zero balance.
func (e *Engine) AddMember(ctx context.Context, groupID string, member models.Member) (models.Member, error) {
	var added models.Member
	_, err := e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		members, err := normalizeMembers([]models.Member{member}, b.group)
		if err != nil {
			return nil, err
		}
		if err := e.store.AddGroupMembers(ctx, b.id, members); err != nil {
			return nil, fmt.Errorf("failed to add member: %w", err)
		}
		added = members[0]
		b.group.Members = append(b.group.Members, added)
		b.ledger.AddMember(added.ID)
		b.publishSnapshot()
		return nil, nil
	})
	if err != nil {
		return models.Member{}, err
	}
	e.logger.Info("Member added", "group_id", groupID, "member_id", added.ID)
	return added, nil
}

// RemoveMember removes a member whose balance is exactly zero.
func (e *Engine) RemoveMember(ctx context.Context, groupID, memberID string) error {
	_, err := e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		i := b.group.MemberIndex(memberID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
		}
		if bal := b.ledger.BalanceOf(memberID); !bal.IsZero() {
			return nil, fmt.Errorf("%w: %s has %d", ErrMemberHasBalance, memberID, bal)
		}
		if err := e.store.RemoveGroupMember(ctx, b.id, memberID); err != nil {
			return nil, fmt.Errorf("failed to remove member: %w", err)
		}
		b.group.Members = append(b.group.Members[:i:i], b.group.Members[i+1:]...)
		b.ledger.RemoveMember(memberID)
		b.publishSnapshot()
		return nil, nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("Member removed", "group_id", groupID, "member_id", memberID)
	return nil
}

// ExpenseInput describes an expense to record.
type ExpenseInput struct {
	GroupID     string
	PayerID     string
	Title       string
	Description string
	Total       money.Money

	// Currency must be empty or the group's currency.
	Currency string

	// Policy defaults to an equal split.
	Policy       calculator.SplitPolicy
	Participants []string

	Actor string
}

// CreateExpense splits the total and posts the expense in one commit.
func (e *Engine) CreateExpense(ctx context.Context, in ExpenseInput) (*models.Expense, error) {
	policy := in.Policy
	if policy == nil {
		policy = calculator.EqualSplit{}
	}

	var expense *models.Expense
	_, err := e.write(ctx, in.GroupID, func(b *book) (*models.LogEntry, error) {
		if err := checkCurrency(b.group, in.Currency); err != nil {
			return nil, err
		}
		if !b.ledger.IsMember(in.PayerID) {
			return nil, fmt.Errorf("%w: payer %s", ErrUnknownMember, in.PayerID)
		}
		for _, p := range in.Participants {
			if !b.ledger.IsMember(p) {
				return nil, fmt.Errorf("%w: participant %s", ErrUnknownMember, p)
			}
		}

		shares, err := calculator.Compute(in.Total, policy, in.Participants)
		if err != nil {
			return nil, err
		}

		weights := policy.Weights()
		exp := &models.Expense{
			ID:          uuid.New().String(),
			GroupID:     b.id,
			PayerID:     in.PayerID,
			Title:       strings.TrimSpace(in.Title),
			Description: in.Description,
			Total:       in.Total,
			Currency:    b.group.Currency,
			Split:       policy.Kind(),
			Shares:      make([]models.ExpenseShare, len(shares)),
			CreatedBy:   in.Actor,
			CreatedAt:   e.now().UnixMilli(),
		}
		for i, sh := range shares {
			exp.Shares[i] = models.ExpenseShare{MemberID: sh.MemberID, Amount: sh.Amount, Weight: weights[sh.MemberID]}
		}

		posting, err := ExpensePosting(b.id, exp.ID, in.PayerID, in.Total, shares)
		if err != nil {
			return nil, err
		}
		entry, err := e.commit(ctx, b, posting, in.Actor, exp)
		if err != nil {
			return nil, err
		}
		expense = exp
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return expense, nil
}

// PreviewSplit computes shares against the group's current members without
// posting anything.
func (e *Engine) PreviewSplit(ctx context.Context, groupID string, total money.Money, currency string, policy calculator.SplitPolicy, participants []string) (calculator.Shares, error) {
	snap, err := e.snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	group := snap.Group()
	if err := checkCurrency(group, currency); err != nil {
		return nil, err
	}
	for _, p := range participants {
		if !group.HasMember(p) {
			return nil, fmt.Errorf("%w: participant %s", ErrUnknownMember, p)
		}
	}
	if policy == nil {
		policy = calculator.EqualSplit{}
	}
	return calculator.Compute(total, policy, participants)
}

// ReverseExpense posts the negation of an expense. An expense can be reversed
// once.
func (e *Engine) ReverseExpense(ctx context.Context, groupID, expenseID, reason, actor string) (*models.LogEntry, error) {
	return e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		original, ok := b.expenses[expenseID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrExpenseNotFound, expenseID)
		}
		if b.reversed[expenseID] {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyReversed, expenseID)
		}
		posting, err := ReversalPosting(original, reason)
		if err != nil {
			return nil, err
		}
		return e.commit(ctx, b, posting, actor, nil)
	})
}

// Post commits an arbitrary balanced posting, such as a multi-party
// settlement. Expenses and reversals have their own operations.
func (e *Engine) Post(ctx context.Context, groupID string, posting models.Posting, actor string) (*models.LogEntry, error) {
	switch posting.Kind {
	case "":
		posting.Kind = models.EntrySettlement
	case models.EntrySettlement:
	default:
		return nil, fmt.Errorf("%w: cannot post %s entries directly", ErrInvalidInput, posting.Kind)
	}
	return e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		return e.commit(ctx, b, posting, actor, nil)
	})
}

// Balances returns every member's balance. Positive means the group owes the
// member. It reads the latest snapshot and never waits for writers.
func (e *Engine) Balances(ctx context.Context, groupID string) (map[string]money.Money, error) {
	snap, err := e.snapshot(ctx, groupID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]money.Money, len(snap.Balances))
	for id, b := range snap.Balances {
		out[id] = b
	}
	return out, nil
}

// BalanceOf returns one member's balance.
func (e *Engine) BalanceOf(ctx context.Context, groupID, memberID string) (money.Money, error) {
	snap, err := e.snapshot(ctx, groupID)
	if err != nil {
		return 0, err
	}
	b, ok := snap.Balances[memberID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}
	return b, nil
}

// Snapshot returns the group's latest snapshot.
func (e *Engine) Snapshot(ctx context.Context, groupID string) (*Snapshot, error) {
	return e.snapshot(ctx, groupID)
}

// ProposeSettlement plans the transfers that settle the group. The returned
// transfer IDs can be executed with ExecuteProposed until each is executed
// once, a newer proposal replaces them, or any other posting changes the
// balances they were planned from.
func (e *Engine) ProposeSettlement(ctx context.Context, groupID string) ([]models.SettlementTransfer, error) {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return nil, err
	}
	snap := b.snap.Load()
	if snap.Halted {
		return nil, haltedError(groupID)
	}

	plan, err := calculator.Plan(snap.Balances)
	if err != nil {
		return nil, err
	}

	transfers := make([]models.SettlementTransfer, len(plan))
	proposals := make(map[string]models.SettlementTransfer, len(plan))
	for i, t := range plan {
		transfers[i] = models.SettlementTransfer{
			ID:           uuid.New().String(),
			GroupID:      groupID,
			FromMemberID: t.From,
			ToMemberID:   t.To,
			Amount:       t.Amount,
			Currency:     snap.Currency,
		}
		proposals[transfers[i].ID] = transfers[i]
	}

	b.propMu.Lock()
	b.proposals = proposals
	b.proposedAt = snap.Seq
	b.propMu.Unlock()

	e.metrics.SettlementPlanned(len(transfers))
	return transfers, nil
}

// ExecuteProposed posts a transfer from the latest proposal.
func (e *Engine) ExecuteProposed(ctx context.Context, groupID, transferID, memo, actor string) (*models.LogEntry, error) {
	return e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		b.propMu.Lock()
		t, ok := b.proposals[transferID]
		stale := b.proposedAt != b.seq
		b.propMu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, transferID)
		}
		if stale {
			b.dropProposals()
			return nil, fmt.Errorf("%w: %s was planned before seq %d", ErrTransferNotFound, transferID, b.seq)
		}

		entry, err := e.settle(ctx, b, t, memo, actor)
		if err != nil {
			return nil, err
		}

		b.propMu.Lock()
		// A newer proposal may have replaced the set while we settled.
		if _, current := b.proposals[transferID]; current {
			delete(b.proposals, transferID)
			b.proposedAt = entry.Seq
		}
		b.propMu.Unlock()
		return entry, nil
	})
}

// ExecuteSettlement posts an ad-hoc transfer. The amount may be less than
// what the debtor owes; partial settlements are ordinary postings. An empty
// t.Currency means the group's currency.
func (e *Engine) ExecuteSettlement(ctx context.Context, groupID string, t models.SettlementTransfer, memo, actor string) (*models.LogEntry, error) {
	t.ID = ""
	return e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		return e.settle(ctx, b, t, memo, actor)
	})
}

// SettleExpenseShare records that memberID paid the expense's payer whatever
// remains of their share. Balances move like any other settlement; the
// posting references the expense so its status can be derived.
func (e *Engine) SettleExpenseShare(ctx context.Context, groupID, expenseID, memberID, memo, actor string) (*models.LogEntry, error) {
	return e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		original, ok := b.expenses[expenseID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrExpenseNotFound, expenseID)
		}
		if b.reversed[expenseID] {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyReversed, expenseID)
		}

		// Expense postings carry the payer first and a debit per other
		// participant.
		payer := original.Deltas[0].MemberID
		if memberID == payer {
			return nil, fmt.Errorf("%w: %s paid for expense %s", ErrInvalidInput, memberID, expenseID)
		}
		var owed money.Money
		for _, d := range original.Deltas[1:] {
			if d.MemberID == memberID {
				owed = -d.Amount
			}
		}
		if owed <= 0 {
			return nil, fmt.Errorf("%w: %s has no share in expense %s", ErrInvalidInput, memberID, expenseID)
		}
		left := owed - b.settled[expenseID][memberID]
		if left <= 0 {
			return nil, fmt.Errorf("%w: %s in expense %s", ErrAlreadySettled, memberID, expenseID)
		}

		posting, err := SettlementPosting(models.SettlementTransfer{
			GroupID:      b.id,
			FromMemberID: memberID,
			ToMemberID:   payer,
			Amount:       left,
		}, memo)
		if err != nil {
			return nil, err
		}
		posting.Ref = expenseID
		return e.commit(ctx, b, posting, actor, nil)
	})
}

func (e *Engine) settle(ctx context.Context, b *book, t models.SettlementTransfer, memo, actor string) (*models.LogEntry, error) {
	if err := checkCurrency(b.group, t.Currency); err != nil {
		return nil, err
	}
	t.GroupID = b.id
	posting, err := SettlementPosting(t, memo)
	if err != nil {
		return nil, err
	}
	return e.commit(ctx, b, posting, actor, nil)
}

// ListExpenses returns the group's expenses, newest first. A non-empty
// memberID keeps only expenses the member paid for or shares in.
func (e *Engine) ListExpenses(ctx context.Context, groupID, memberID string) ([]models.ExpenseSummary, error) {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return nil, err
	}
	expenses, err := e.store.ListExpensesByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}

	snap := b.snap.Load()
	out := make([]models.ExpenseSummary, 0, len(expenses))
	for _, exp := range expenses {
		if memberID != "" && !involves(exp, memberID) {
			continue
		}
		out = append(out, snap.summary(exp))
	}
	return out, nil
}

// GetExpense returns one expense of the group.
func (e *Engine) GetExpense(ctx context.Context, groupID, expenseID string) (*models.ExpenseSummary, error) {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return nil, err
	}
	exp, err := e.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if exp.GroupID != groupID {
		return nil, fmt.Errorf("%w: %s", ErrExpenseNotFound, expenseID)
	}
	summary := b.snap.Load().summary(exp)
	return &summary, nil
}

// History returns the group's log entries after afterSeq.
func (e *Engine) History(ctx context.Context, groupID string, afterSeq int64) ([]models.LogEntry, error) {
	if _, err := e.book(ctx, groupID); err != nil {
		return nil, err
	}
	entries, err := e.store.ListEntries(ctx, groupID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// Verify replays the group's log and compares it with the live ledger. A
// mismatch halts the group.
func (e *Engine) Verify(ctx context.Context, groupID string) error {
	_, err := e.write(ctx, groupID, func(b *book) (*models.LogEntry, error) {
		entries, err := e.store.ListEntries(ctx, groupID, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list entries: %w", err)
		}
		folded, err := Fold(entries)
		if err != nil {
			e.halt(b, err)
			return nil, err
		}
		if d := diff(folded.balances, b.ledger.balances); d != "" {
			err := fmt.Errorf("%w: replay differs from live balances (%s)", ErrUnbalancedLedger, d)
			e.halt(b, err)
			return nil, err
		}
		return nil, nil
	})
	return err
}

// Reconcile rebuilds the group's ledger from storage and clears a halt when
// the log replays cleanly.
func (e *Engine) Reconcile(ctx context.Context, groupID string) error {
	b, err := e.book(ctx, groupID)
	if err != nil {
		return err
	}
	release, err := e.lock(ctx, b)
	if err != nil {
		return err
	}
	defer release()

	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	entries, err := e.store.ListEntries(ctx, groupID, 0)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	if err := b.rebuild(group, entries); err != nil {
		e.halt(b, err)
		return err
	}

	if b.halted {
		b.halted = false
		e.metrics.GroupRecovered()
	}
	b.publishSnapshot()
	b.dropProposals()

	e.logger.Info("Group reconciled", "group_id", groupID, "seq", b.seq)
	return nil
}

func checkCurrency(group *models.Group, code string) error {
	if code == "" {
		return nil
	}
	cur, err := money.ParseCurrency(code)
	if err != nil {
		return err
	}
	if cur.Code() != group.Currency {
		return fmt.Errorf("%w: got %s, group uses %s", ErrCurrencyMismatch, cur.Code(), group.Currency)
	}
	return nil
}

// normalizeMembers trims names, fills in missing IDs and rejects duplicates,
// both among members and against the group's current members.
func normalizeMembers(members []models.Member, group *models.Group) ([]models.Member, error) {
	out := make([]models.Member, len(members))
	seen := make(map[string]bool, len(members))
	for i, m := range members {
		m.ID = strings.TrimSpace(m.ID)
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("%w: member name is required", ErrInvalidInput)
		}
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if seen[m.ID] || (group != nil && group.HasMember(m.ID)) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMember, m.ID)
		}
		seen[m.ID] = true
		out[i] = m
	}
	return out, nil
}

func involves(exp *models.Expense, memberID string) bool {
	if exp.PayerID == memberID {
		return true
	}
	for _, sh := range exp.Shares {
		if sh.MemberID == memberID {
			return true
		}
	}
	return false
}
