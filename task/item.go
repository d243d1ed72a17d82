package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State represents the current lifecycle state of a work item.
// Transitions are monotonic: Pending -> Running -> Completed or Failed.
type State int32

// Possible item states.
const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// String returns a lowercase name for the state.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is Completed or Failed.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Action is the capability interface for a unit of work. The engine never
// inspects the body; it only executes it and classifies the returned error.
type Action interface {
	// Execute runs the work. The context carries the engine's cooperative
	// cancellation signal and must be honored by long-running bodies.
	Execute(ctx context.Context) error
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context) error

// Execute calls f(ctx).
func (f ActionFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Item is a unit of submitted work. It is owned exclusively by the scheduler
// from enqueue until it reaches a terminal state; after that it is immutable
// and safe to share read-only. All accessors are safe for concurrent use.
type Item struct {
	id       uuid.UUID
	priority int
	action   Action
	key      string

	mu          sync.Mutex
	state       State
	attempts    int
	err         error
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time

	done     chan struct{}
	notified bool
}

// New creates a pending item wrapping the given action.
func New(action Action) *Item {
	return &Item{
		id:        uuid.New(),
		action:    action,
		state:     StatePending,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// NewKeyed creates a pending item bound to a circuit-breaker resource key.
// Items sharing a key share one breaker instance.
func NewKeyed(action Action, key string) *Item {
	it := New(action)
	it.key = key
	return it
}

// ID returns the item's unique identifier.
func (it *Item) ID() uuid.UUID { return it.id }

// Action returns the opaque work body.
func (it *Item) Action() Action { return it.action }

// Key returns the circuit-breaker resource key, empty if none.
func (it *Item) Key() string { return it.key }

// Priority returns the scheduling priority; higher values dequeue first.
func (it *Item) Priority() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.priority
}

// SetPriority assigns the scheduling priority. It has no effect once the
// item has been dispatched.
func (it *Item) SetPriority(p int) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.priority = p
}

// State returns the current lifecycle state.
func (it *Item) State() State {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.state
}

// Err returns the captured error for a failed item, nil otherwise.
func (it *Item) Err() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}

// Attempts returns the number of execution attempts recorded so far.
func (it *Item) Attempts() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.attempts
}

// RecordAttempts stores the attempt count reported by the retry executor.
func (it *Item) RecordAttempts(n int) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.attempts = n
}

// CreatedAt returns the enqueue-side creation time.
func (it *Item) CreatedAt() time.Time {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.createdAt
}

// StartedAt returns the dispatch time, zero if never dispatched.
func (it *Item) StartedAt() time.Time {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.startedAt
}

// CompletedAt returns the terminal transition time, zero if not terminal.
func (it *Item) CompletedAt() time.Time {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.completedAt
}

// Duration returns the running duration, zero until the item is terminal.
func (it *Item) Duration() time.Duration {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.startedAt.IsZero() || it.completedAt.IsZero() {
		return 0
	}
	return it.completedAt.Sub(it.startedAt)
}

// Done returns a channel closed once the item is terminal and its outcome
// has been routed to the engine's observers (monitor, dead letter queue,
// event subscribers). A waiter woken by Done therefore sees the fully
// recorded outcome.
func (it *Item) Done() <-chan struct{} { return it.done }

// MarkRunning transitions Pending -> Running and records the start time.
// It reports whether the transition was applied; it is a no-op on any other
// state, preserving monotonicity.
func (it *Item) MarkRunning() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != StatePending {
		return false
	}
	it.state = StateRunning
	it.startedAt = time.Now()
	return true
}

// MarkCompleted transitions Running -> Completed. Done stays open until
// NotifyDone is called.
func (it *Item) MarkCompleted() bool {
	return it.finish(StateCompleted, nil)
}

// MarkFailed transitions Running -> Failed, capturing the error. Done stays
// open until NotifyDone is called.
func (it *Item) MarkFailed(err error) bool {
	return it.finish(StateFailed, err)
}

// NotifyDone closes Done. The scheduler calls it as the last step of an
// item's lifecycle, after the terminal transition has been routed to every
// callback. It is idempotent and a no-op on a non-terminal item.
func (it *Item) NotifyDone() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.notified || !it.state.Terminal() {
		return
	}
	it.notified = true
	close(it.done)
}

func (it *Item) finish(s State, err error) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.state != StateRunning {
		return false
	}
	it.state = s
	it.err = err
	it.completedAt = time.Now()
	return true
}
