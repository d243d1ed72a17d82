package breaker

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failure")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testRegistry(threshold uint32, cooldown time.Duration) *Registry {
	return NewRegistry(Config{
		FailureThreshold: threshold,
		Cooldown:         cooldown,
	}, testLogger())
}

func TestGetOrCreateReturnsSingletonPerKey(t *testing.T) {
	registry := testRegistry(3, time.Second)

	a := registry.GetOrCreate("archive")
	b := registry.GetOrCreate("archive")
	c := registry.GetOrCreate("texture")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, []string{"archive", "texture"}, registry.Keys())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	registry := testRegistry(3, time.Minute)
	b := registry.GetOrCreate("archive")

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errDownstream })
		require.ErrorIs(t, err, errDownstream)
	}
	assert.Equal(t, "open", b.State())

	// The next call is rejected without invoking the wrapped action.
	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)
}

func TestSuccessResetsConsecutiveFailures(t *testing.T) {
	registry := testRegistry(3, time.Minute)
	b := registry.GetOrCreate("archive")

	require.Error(t, b.Execute(func() error { return errDownstream }))
	require.Error(t, b.Execute(func() error { return errDownstream }))
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, uint32(0), b.ConsecutiveFailures())

	// Two more failures must not trip a threshold of three.
	require.Error(t, b.Execute(func() error { return errDownstream }))
	require.Error(t, b.Execute(func() error { return errDownstream }))
	assert.Equal(t, "closed", b.State())
}

func TestHalfOpenTrialClosesOnSuccess(t *testing.T) {
	cooldown := 50 * time.Millisecond
	registry := testRegistry(2, cooldown)
	b := registry.GetOrCreate("archive")

	require.Error(t, b.Execute(func() error { return errDownstream }))
	require.Error(t, b.Execute(func() error { return errDownstream }))
	require.Equal(t, "open", b.State())

	time.Sleep(cooldown + 20*time.Millisecond)

	// Exactly one trial call is admitted and succeeds.
	err := b.Execute(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", b.State())
	assert.Equal(t, uint32(0), b.ConsecutiveFailures())
}

func TestHalfOpenTrialReopensOnFailure(t *testing.T) {
	cooldown := 50 * time.Millisecond
	registry := testRegistry(2, cooldown)
	b := registry.GetOrCreate("archive")

	require.Error(t, b.Execute(func() error { return errDownstream }))
	require.Error(t, b.Execute(func() error { return errDownstream }))

	time.Sleep(cooldown + 20*time.Millisecond)

	// Failing trial restarts the cool-down.
	require.ErrorIs(t, b.Execute(func() error { return errDownstream }), errDownstream)
	assert.Equal(t, "open", b.State())

	// Still rejecting before the restarted cool-down elapses.
	err := b.Execute(func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestStatusReport(t *testing.T) {
	registry := testRegistry(2, time.Minute)

	report := registry.Status()
	assert.Contains(t, report, "none registered")

	b := registry.GetOrCreate("archive")
	require.Error(t, b.Execute(func() error { return errDownstream }))
	registry.GetOrCreate("texture")

	report = registry.Status()
	assert.Contains(t, report, "archive")
	assert.Contains(t, report, "texture")
	assert.Contains(t, report, "state=closed")
	assert.Contains(t, report, "consecutive_failures=1")
}

func TestNewRegistryAppliesDefaults(t *testing.T) {
	registry := NewRegistry(Config{}, testLogger())
	assert.Equal(t, DefaultConfig().FailureThreshold, registry.cfg.FailureThreshold)
	assert.Equal(t, DefaultConfig().Cooldown, registry.cfg.Cooldown)
}
