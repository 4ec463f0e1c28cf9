package skill

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Decision states for a queued invocation.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalDenied   ApprovalState = "denied"
)

var (
	ErrApprovalNotFound = errors.New("approval not found")
	// ErrAlreadyDecided is returned when a second decision is attempted on
	// the same item. The first decision always wins.
	ErrAlreadyDecided = errors.New("approval already decided")
	ErrNotApproved    = errors.New("approval was not granted")
)

// ApprovalItem is one invocation waiting on a human decision.
type ApprovalItem struct {
	ID        string         `json:"id"`
	SkillID   string         `json:"skill_id"`
	Inputs    map[string]any `json:"inputs"`
	State     ApprovalState  `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	DecidedAt time.Time      `json:"decided_at,omitempty"`
}

// ApprovalQueue holds invocations gated on explicit approval. Each item is
// decided at most once.
type ApprovalQueue struct {
	mu    sync.Mutex
	items map[string]*ApprovalItem
}

func NewApprovalQueue() *ApprovalQueue {
	return &ApprovalQueue{items: make(map[string]*ApprovalItem)}
}

// Enqueue adds a pending invocation and returns it.
func (q *ApprovalQueue) Enqueue(skillID string, inputs map[string]any) *ApprovalItem {
	item := &ApprovalItem{
		ID:        uuid.NewString(),
		SkillID:   skillID,
		Inputs:    inputs,
		State:     ApprovalPending,
		CreatedAt: time.Now().UTC(),
	}
	q.mu.Lock()
	q.items[item.ID] = item
	q.mu.Unlock()
	return item
}

// Pending returns undecided items, oldest first.
func (q *ApprovalQueue) Pending() []ApprovalItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]ApprovalItem, 0, len(q.items))
	for _, item := range q.items {
		if item.State == ApprovalPending {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Decide records the decision for a pending item. Deciding twice returns
// ErrAlreadyDecided without changing the recorded outcome.
func (q *ApprovalQueue) Decide(id string, approved bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return ErrApprovalNotFound
	}
	if item.State != ApprovalPending {
		return ErrAlreadyDecided
	}
	if approved {
		item.State = ApprovalApproved
	} else {
		item.State = ApprovalDenied
	}
	item.DecidedAt = time.Now().UTC()
	return nil
}

// Take removes an approved item for execution. Pending and denied items are
// not executable; taking the same id twice fails the second time.
func (q *ApprovalQueue) Take(id string) (*ApprovalItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return nil, ErrApprovalNotFound
	}
	if item.State != ApprovalApproved {
		return nil, ErrNotApproved
	}
	delete(q.items, id)
	return item, nil
}
