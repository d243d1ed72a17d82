package deadletter

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelis/crank/task"
)

// Common errors returned by the Queue.
var (
	// ErrNotFound is returned when no entry exists for the given item id.
	ErrNotFound = errors.New("dead letter entry not found")

	// ErrExhausted is returned when an entry has hit the replay cap and no
	// further retry attempts are accepted for it.
	ErrExhausted = errors.New("dead letter entry permanently exhausted")
)

// Status is the replay status of an entry.
type Status string

// Possible entry statuses.
const (
	StatusPendingRetry Status = "pending_retry"
	StatusExhausted    Status = "exhausted"
)

// Entry records one dead-lettered work item. Apart from replay bookkeeping
// it is immutable; the Queue hands out copies so callers can never mutate
// shared state.
type Entry struct {
	// ItemID references the originating work item.
	ItemID uuid.UUID

	// Err is the failure that exhausted the item's retries.
	Err error

	// EnqueuedAt is when the entry was dead-lettered.
	EnqueuedAt time.Time

	// RetryAttempts counts failed manual replays so far.
	RetryAttempts int

	// Status is pending_retry until a replay succeeds or the cap is hit.
	Status Status
}

// Config holds dead letter queue settings.
type Config struct {
	// MaxReplays caps failed manual replays per entry before it is marked
	// permanently exhausted.
	MaxReplays int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{MaxReplays: 3}
}

// Queue is an in-memory dead letter queue keyed by work item id. It is safe
// for concurrent use from every worker.
type Queue struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*Entry
	order   []uuid.UUID
	cfg     Config
	logger  *slog.Logger
}

// NewQueue creates an empty Queue.
func NewQueue(cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxReplays <= 0 {
		cfg.MaxReplays = DefaultConfig().MaxReplays
	}
	return &Queue{
		entries: make(map[uuid.UUID]*Entry),
		cfg:     cfg,
		logger:  logger.With("component", "dead_letter_queue"),
	}
}

// Add dead-letters an item whose retries were exhausted. Re-adding an item
// that already has an entry refreshes the captured error but keeps the
// existing replay bookkeeping.
func (q *Queue) Add(item *task.Item, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.entries[item.ID()]; ok {
		existing.Err = err
		q.logger.Debug("dead letter entry refreshed",
			"item_id", item.ID(),
			"error", err)
		return
	}

	q.entries[item.ID()] = &Entry{
		ItemID:     item.ID(),
		Err:        err,
		EnqueuedAt: time.Now(),
		Status:     StatusPendingRetry,
	}
	q.order = append(q.order, item.ID())

	q.logger.Info("work item dead-lettered",
		"item_id", item.ID(),
		"attempts", item.Attempts(),
		"error", err)
}

// Entry returns a copy of the entry for the given item id.
func (q *Queue) Entry(id uuid.UUID) (Entry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	e, ok := q.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *e, nil
}

// PendingRetries returns copies of all entries still awaiting a successful
// replay, in dead-letter order.
func (q *Queue) PendingRetries() []Entry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	pending := make([]Entry, 0, len(q.entries))
	for _, id := range q.order {
		if e, ok := q.entries[id]; ok && e.Status == StatusPendingRetry {
			pending = append(pending, *e)
		}
	}
	return pending
}

// Len returns the number of entries currently held.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// RecordRetryAttempt records the outcome of a manual replay. A successful
// replay resolves and removes the entry. A failed replay increments the
// attempt count; once it reaches the configured cap the entry is marked
// permanently exhausted and further attempts are rejected with ErrExhausted.
func (q *Queue) RecordRetryAttempt(id uuid.UUID, success bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if e.Status == StatusExhausted {
		return fmt.Errorf("%w: %s", ErrExhausted, id)
	}

	if success {
		delete(q.entries, id)
		q.removeFromOrder(id)
		q.logger.Info("dead letter entry resolved", "item_id", id)
		return nil
	}

	e.RetryAttempts++
	if e.RetryAttempts >= q.cfg.MaxReplays {
		e.Status = StatusExhausted
		q.logger.Warn("dead letter entry permanently exhausted",
			"item_id", id,
			"replay_attempts", e.RetryAttempts)
	} else {
		q.logger.Info("dead letter replay failed",
			"item_id", id,
			"replay_attempts", e.RetryAttempts,
			"max_replays", q.cfg.MaxReplays)
	}
	return nil
}

func (q *Queue) removeFromOrder(id uuid.UUID) {
	for i, other := range q.order {
		if other == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}

// FormattedReport renders an operator-facing summary of all entries.
func (q *Queue) FormattedReport() string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("Dead Letter Queue\n")
	sb.WriteString("=================\n")
	if len(q.entries) == 0 {
		sb.WriteString("(empty)\n")
		return sb.String()
	}

	ids := make([]uuid.UUID, len(q.order))
	copy(ids, q.order)
	sort.Slice(ids, func(i, j int) bool {
		return q.entries[ids[i]].EnqueuedAt.Before(q.entries[ids[j]].EnqueuedAt)
	})

	for _, id := range ids {
		e := q.entries[id]
		fmt.Fprintf(&sb, "%s  status=%-13s replays=%d/%d  enqueued=%s  error=%v\n",
			e.ItemID,
			e.Status,
			e.RetryAttempts,
			q.cfg.MaxReplays,
			e.EnqueuedAt.Format(time.RFC3339),
			e.Err)
	}
	return sb.String()
}
