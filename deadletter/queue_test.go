package deadletter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelis/crank/task"
)

var errBody = errors.New("body failure")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func newItem() *task.Item {
	return task.New(task.ActionFunc(func(ctx context.Context) error { return errBody }))
}

func TestAddAndEntry(t *testing.T) {
	q := NewQueue(Config{MaxReplays: 2}, testLogger())
	item := newItem()

	q.Add(item, errBody)

	entry, err := q.Entry(item.ID())
	require.NoError(t, err)
	assert.Equal(t, item.ID(), entry.ItemID)
	assert.ErrorIs(t, entry.Err, errBody)
	assert.Equal(t, StatusPendingRetry, entry.Status)
	assert.Zero(t, entry.RetryAttempts)
	assert.False(t, entry.EnqueuedAt.IsZero())
	assert.Equal(t, 1, q.Len())
}

func TestEntryNotFound(t *testing.T) {
	q := NewQueue(DefaultConfig(), testLogger())

	_, err := q.Entry(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	err = q.RecordRetryAttempt(uuid.New(), true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddIsIdempotentPerItem(t *testing.T) {
	q := NewQueue(Config{MaxReplays: 2}, testLogger())
	item := newItem()

	q.Add(item, errBody)
	require.NoError(t, q.RecordRetryAttempt(item.ID(), false))

	refreshed := errors.New("second failure")
	q.Add(item, refreshed)

	entry, err := q.Entry(item.ID())
	require.NoError(t, err)
	assert.ErrorIs(t, entry.Err, refreshed)
	assert.Equal(t, 1, entry.RetryAttempts, "replay bookkeeping survives re-add")
	assert.Equal(t, 1, q.Len())
}

func TestSuccessfulReplayResolvesEntry(t *testing.T) {
	q := NewQueue(Config{MaxReplays: 2}, testLogger())
	item := newItem()
	q.Add(item, errBody)

	require.NoError(t, q.RecordRetryAttempt(item.ID(), true))

	_, err := q.Entry(item.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, q.PendingRetries())
	assert.Zero(t, q.Len())
}

func TestReplayCapExhaustsEntry(t *testing.T) {
	q := NewQueue(Config{MaxReplays: 2}, testLogger())
	item := newItem()
	q.Add(item, errBody)

	require.NoError(t, q.RecordRetryAttempt(item.ID(), false))
	entry, err := q.Entry(item.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusPendingRetry, entry.Status)

	require.NoError(t, q.RecordRetryAttempt(item.ID(), false))
	entry, err = q.Entry(item.ID())
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, entry.Status)
	assert.Equal(t, 2, entry.RetryAttempts)

	// Further replays are rejected, including successful ones.
	assert.ErrorIs(t, q.RecordRetryAttempt(item.ID(), false), ErrExhausted)
	assert.ErrorIs(t, q.RecordRetryAttempt(item.ID(), true), ErrExhausted)

	// Exhausted entries are kept, not silently dropped.
	assert.Equal(t, 1, q.Len())
	assert.Empty(t, q.PendingRetries())
}

func TestPendingRetriesPreservesOrder(t *testing.T) {
	q := NewQueue(Config{MaxReplays: 2}, testLogger())

	first := newItem()
	second := newItem()
	third := newItem()
	q.Add(first, errBody)
	q.Add(second, errBody)
	q.Add(third, errBody)

	require.NoError(t, q.RecordRetryAttempt(second.ID(), true))

	pending := q.PendingRetries()
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID(), pending[0].ItemID)
	assert.Equal(t, third.ID(), pending[1].ItemID)
}

func TestFormattedReport(t *testing.T) {
	q := NewQueue(Config{MaxReplays: 2}, testLogger())

	report := q.FormattedReport()
	assert.Contains(t, report, "empty")

	item := newItem()
	q.Add(item, errBody)
	require.NoError(t, q.RecordRetryAttempt(item.ID(), false))

	report = q.FormattedReport()
	assert.Contains(t, report, item.ID().String())
	assert.Contains(t, report, "pending_retry")
	assert.Contains(t, report, "replays=1/2")
	assert.Contains(t, report, "body failure")
}
