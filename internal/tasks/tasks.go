package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound          = errors.New("tasks: not found")
	ErrExists            = errors.New("tasks: already exists")
	ErrInvalidTransition = errors.New("tasks: invalid transition")
)

type Kind string

const (
	KindIngest Kind = "ingest"
	KindQuery  Kind = "query"
)

type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateUnknown    State = "unknown"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

type Task struct {
	ID        string
	Kind      Kind
	State     State
	Reason    string
	TargetID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Status renders the wire form: the bare state, or "failed: <reason>".
func (t Task) Status() string {
	if t.State == StateFailed {
		return "failed: " + t.Reason
	}
	return string(t.State)
}

// Ledger is the process-wide record of task lifecycles. Entries are never
// removed.
type Ledger struct {
	mu    sync.RWMutex
	tasks map[string]Task
	clock func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{tasks: map[string]Task{}, clock: time.Now}
}

func (l *Ledger) Create(id string, kind Kind, targetID string) (Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tasks[id]; ok {
		return Task{}, fmt.Errorf("create task %q: %w", id, ErrExists)
	}
	now := l.clock().UTC()
	task := Task{
		ID:        id,
		Kind:      kind,
		State:     StateQueued,
		TargetID:  targetID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	l.tasks[id] = task
	return task, nil
}

// Transition moves a task along queued -> processing -> completed|failed.
// reason is recorded only for StateFailed.
func (l *Ledger) Transition(id string, next State, reason string) (Task, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	task, ok := l.tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("transition task %q: %w", id, ErrNotFound)
	}
	if !allowed(task.State, next) {
		return Task{}, fmt.Errorf("transition task %q from %s to %s: %w", id, task.State, next, ErrInvalidTransition)
	}
	task.State = next
	if next == StateFailed {
		task.Reason = reason
	}
	task.UpdatedAt = l.clock().UTC()
	l.tasks[id] = task
	return task, nil
}

// Get returns a task with StateUnknown for ids that were never created.
func (l *Ledger) Get(id string) (Task, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	task, ok := l.tasks[id]
	if !ok {
		return Task{ID: id, State: StateUnknown}, false
	}
	return task, true
}

func (l *Ledger) List() []Task {
	l.mu.RLock()
	out := make([]Task, 0, len(l.tasks))
	for _, task := range l.tasks {
		out = append(out, task)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func allowed(from, to State) bool {
	switch from {
	case StateQueued:
		return to == StateProcessing
	case StateProcessing:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
