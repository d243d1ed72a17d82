package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient failure")
	errPermanent = errors.New("permanent failure")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testConfig() Config {
	return Config{
		MaxRetries:      2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        10 * time.Millisecond,
		Multiplier:      2.0,
		JitterFactor:    0,
		RetryableErrors: []error{errTransient},
	}
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	policy := NewPolicy(testConfig(), testLogger())

	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.True(t, res.Success)
	assert.False(t, res.Cancelled)
	assert.NoError(t, res.Err)
	assert.Equal(t, 1, calls)
	require.Equal(t, 1, res.AttemptCount())
	assert.True(t, res.Attempts[0].Success)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	policy := NewPolicy(testConfig(), testLogger())

	// Fails exactly MaxRetries times, then succeeds.
	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errTransient
		}
		return nil
	})

	assert.True(t, res.Success)
	assert.Equal(t, 3, calls)
	require.Equal(t, 3, res.AttemptCount())
	assert.False(t, res.Attempts[0].Success)
	assert.False(t, res.Attempts[1].Success)
	assert.True(t, res.Attempts[2].Success)
	assert.Positive(t, res.Attempts[0].Delay)
	assert.Zero(t, res.Attempts[2].Delay)
}

func TestExecuteExhaustsRetries(t *testing.T) {
	policy := NewPolicy(testConfig(), testLogger())

	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	assert.False(t, res.Success)
	assert.False(t, res.Cancelled)
	assert.ErrorIs(t, res.Err, errTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.AttemptCount())
}

func TestExecuteNonRetryableStopsImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.NonRetryableErrors = []error{errPermanent}
	policy := NewPolicy(cfg, testLogger())

	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errPermanent
	})

	assert.False(t, res.Success)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.AttemptCount())
	assert.ErrorIs(t, res.Err, errPermanent)
}

func TestExecuteNonRetryableTakesPrecedence(t *testing.T) {
	// An error classified both ways must not be retried.
	cfg := testConfig()
	cfg.RetryableErrors = []error{errPermanent}
	cfg.NonRetryableErrors = []error{errPermanent}
	policy := NewPolicy(cfg, testLogger())

	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errPermanent
	})

	assert.Equal(t, 1, calls)
	assert.False(t, res.Success)
}

func TestExecuteUnclassifiedIsNotRetried(t *testing.T) {
	policy := NewPolicy(testConfig(), testLogger())

	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("never seen before")
	})

	assert.Equal(t, 1, calls)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.AttemptCount())
}

func TestExecuteClassifierOverridesSentinels(t *testing.T) {
	cfg := testConfig()
	cfg.Classifier = func(err error) Classification {
		return ClassRetryable
	}
	policy := NewPolicy(cfg, testLogger())

	calls := 0
	res := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("unclassified but promoted")
	})

	assert.Equal(t, 3, calls)
	assert.False(t, res.Success)
}

func TestExecuteCancelledBeforeFirstAttempt(t *testing.T) {
	policy := NewPolicy(testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	res := policy.Execute(ctx, func(ctx context.Context) error {
		calls++
		return nil
	})

	assert.True(t, res.Cancelled)
	assert.False(t, res.Success)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, res.AttemptCount())
}

func TestExecuteCancelledDuringDelay(t *testing.T) {
	cfg := testConfig()
	cfg.InitialDelay = 5 * time.Second
	cfg.MaxDelay = 5 * time.Second
	policy := NewPolicy(cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	start := time.Now()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := policy.Execute(ctx, func(ctx context.Context) error {
		calls++
		return errTransient
	})

	assert.True(t, res.Cancelled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second, "cancellation should cut the delay short")
}

func TestDelayGrowthAndCap(t *testing.T) {
	cfg := Config{
		MaxRetries:   10,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     80 * time.Millisecond,
		Multiplier:   2.0,
		JitterFactor: 0,
	}
	policy := NewPolicy(cfg, testLogger())

	var prev time.Duration
	for n := 1; n <= 8; n++ {
		d := policy.delayAfter(n)
		assert.GreaterOrEqual(t, d, prev, "delay must be non-decreasing")
		assert.LessOrEqual(t, d, cfg.MaxDelay, "delay must respect the cap")
		prev = d
	}
	assert.Equal(t, 10*time.Millisecond, policy.delayAfter(1))
	assert.Equal(t, 20*time.Millisecond, policy.delayAfter(2))
	assert.Equal(t, 80*time.Millisecond, policy.delayAfter(4))
	assert.Equal(t, 80*time.Millisecond, policy.delayAfter(8))
}

func TestDelayJitterNeverNegative(t *testing.T) {
	cfg := Config{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1.0,
		JitterFactor: 1.0,
	}
	policy := NewPolicy(cfg, testLogger())

	for i := 0; i < 1000; i++ {
		assert.GreaterOrEqual(t, policy.delayAfter(1), time.Duration(0))
	}
}

func TestNewPolicyNormalizesConfig(t *testing.T) {
	policy := NewPolicy(Config{
		MaxRetries:   -1,
		InitialDelay: -time.Second,
		MaxDelay:     -time.Second,
		Multiplier:   0,
		JitterFactor: 3,
	}, testLogger())

	cfg := policy.Config()
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Positive(t, cfg.InitialDelay)
	assert.GreaterOrEqual(t, cfg.MaxDelay, cfg.InitialDelay)
	assert.GreaterOrEqual(t, cfg.Multiplier, 1.0)
	assert.LessOrEqual(t, cfg.JitterFactor, 1.0)
}
