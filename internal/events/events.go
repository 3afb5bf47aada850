// Package events announces committed postings to other systems.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mmynk/settleup/internal/models"
)

// Delta is one member's balance change in minor units.
type Delta struct {
	MemberID   string `json:"member_id"`
	MinorUnits int64  `json:"minor_units"`
}

// PostingCommitted is emitted once per log entry, after it is durable.
type PostingCommitted struct {
	GroupID     string    `json:"group_id"`
	Seq         int64     `json:"seq"`
	PostingID   string    `json:"posting_id"`
	Kind        string    `json:"kind"`
	Ref         string    `json:"ref,omitempty"`
	Memo        string    `json:"memo,omitempty"`
	Currency    string    `json:"currency"`
	Actor       string    `json:"actor,omitempty"`
	Deltas      []Delta   `json:"deltas"`
	CommittedAt time.Time `json:"committed_at"`
}

// NewPostingCommitted builds the event for a log entry.
func NewPostingCommitted(entry *models.LogEntry, currency string) PostingCommitted {
	deltas := make([]Delta, len(entry.Posting.Deltas))
	for i, d := range entry.Posting.Deltas {
		deltas[i] = Delta{MemberID: d.MemberID, MinorUnits: int64(d.Amount)}
	}
	return PostingCommitted{
		GroupID:     entry.Posting.GroupID,
		Seq:         entry.Seq,
		PostingID:   entry.Posting.ID,
		Kind:        string(entry.Posting.Kind),
		Ref:         entry.Posting.Ref,
		Memo:        entry.Posting.Memo,
		Currency:    currency,
		Actor:       entry.Actor,
		Deltas:      deltas,
		CommittedAt: time.UnixMilli(entry.CreatedAt).UTC(),
	}
}

// RoutingKey is "ledger.<kind>".
func (e PostingCommitted) RoutingKey() string {
	return "ledger." + e.Kind
}

func (e PostingCommitted) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// PostingCommittedFromJSON decodes an event body.
func PostingCommittedFromJSON(data []byte) (PostingCommitted, error) {
	var e PostingCommitted
	err := json.Unmarshal(data, &e)
	return e, err
}

// Publisher delivers events. Publish must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event PostingCommitted) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, PostingCommitted) error { return nil }
func (Noop) Close() error                                   { return nil }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []PostingCommitted
	err    error
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes later Publish calls return err without recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Publish(_ context.Context, event PostingCommitted) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []PostingCommitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PostingCommitted(nil), r.events...)
}

func (r *Recorder) Close() error { return nil }
