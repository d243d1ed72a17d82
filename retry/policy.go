package retry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Classification is the verdict an optional Classifier returns for an error.
type Classification int

// Classifier verdicts.
const (
	// ClassUnknown defers to the configured sentinel sets.
	ClassUnknown Classification = iota
	// ClassRetryable marks the error as transient.
	ClassRetryable
	// ClassPermanent marks the error as non-retryable.
	ClassPermanent
)

// Config holds retry behavior settings. The zero value is usable after
// NewPolicy applies defaults.
type Config struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed backoff delay.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor applied per attempt.
	Multiplier float64

	// JitterFactor randomizes each delay by up to +/- delay*JitterFactor.
	// Valid range is [0, 1].
	JitterFactor float64

	// RetryableErrors are matched with errors.Is; a match means the failure
	// is transient and worth retrying.
	RetryableErrors []error

	// NonRetryableErrors are matched with errors.Is and take precedence over
	// RetryableErrors; a match stops retrying immediately.
	NonRetryableErrors []error

	// Classifier, when set, is consulted before the sentinel sets. Returning
	// ClassUnknown falls through to them.
	Classifier func(error) Classification
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// Attempt records a single execution attempt.
type Attempt struct {
	// Number is the 1-based attempt index.
	Number int

	// StartedAt is when the attempt began.
	StartedAt time.Time

	// Duration is how long the attempt ran.
	Duration time.Duration

	// Success reports whether the attempt returned nil.
	Success bool

	// Err is the error returned by the attempt, nil on success.
	Err error

	// Delay is the backoff wait scheduled after this attempt, zero when no
	// further attempt follows.
	Delay time.Duration
}

// Result aggregates the outcome of an Execute call.
type Result struct {
	// Success reports whether any attempt returned nil.
	Success bool

	// Cancelled reports whether cooperative cancellation cut execution
	// short. A cancelled result is distinct from a failure and is never
	// dead-lettered.
	Cancelled bool

	// Err is the error from the final attempt, nil on success.
	Err error

	// Attempts holds every attempt in order.
	Attempts []Attempt

	// TotalDuration spans from the first attempt to the final outcome,
	// including backoff waits.
	TotalDuration time.Duration
}

// AttemptCount returns the number of attempts actually made.
func (r Result) AttemptCount() int { return len(r.Attempts) }

// Policy executes operations with retry, backoff and jitter per its Config.
// A Policy is safe for concurrent use.
type Policy struct {
	cfg    Config
	logger *slog.Logger
}

// NewPolicy creates a Policy, normalizing invalid config values to safe
// defaults.
func NewPolicy(cfg Config, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	if cfg.JitterFactor > 1 {
		cfg.JitterFactor = 1
	}
	return &Policy{
		cfg:    cfg,
		logger: logger.With("component", "retry_policy"),
	}
}

// Config returns the normalized configuration.
func (p *Policy) Config() Config { return p.cfg }

// Execute runs op up to MaxRetries+1 times, waiting a jittered exponential
// delay between attempts. Cancellation is checked at the start of each
// attempt and during the delay wait; once observed, no further attempt
// starts and the result is marked Cancelled.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error) Result {
	start := time.Now()
	res := Result{}

	for n := 1; n <= p.cfg.MaxRetries+1; n++ {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			res.Err = err
			break
		}

		attemptStart := time.Now()
		err := op(ctx)
		attempt := Attempt{
			Number:    n,
			StartedAt: attemptStart,
			Duration:  time.Since(attemptStart),
			Success:   err == nil,
			Err:       err,
		}

		if err == nil {
			res.Attempts = append(res.Attempts, attempt)
			res.Success = true
			break
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res.Attempts = append(res.Attempts, attempt)
			res.Cancelled = true
			res.Err = err
			break
		}

		res.Err = err

		if n > p.cfg.MaxRetries || !p.shouldRetry(err) {
			res.Attempts = append(res.Attempts, attempt)
			break
		}

		delay := p.delayAfter(n)
		attempt.Delay = delay
		res.Attempts = append(res.Attempts, attempt)

		p.logger.Debug("attempt failed, backing off",
			"attempt", n,
			"max_attempts", p.cfg.MaxRetries+1,
			"delay", delay,
			"error", err)

		if !p.wait(ctx, delay) {
			res.Cancelled = true
			res.Err = ctx.Err()
			break
		}
	}

	res.TotalDuration = time.Since(start)
	return res
}

// shouldRetry applies the classification rules: non-retryable matches win,
// then retryable matches allow a retry, and anything unclassified stops.
func (p *Policy) shouldRetry(err error) bool {
	if p.cfg.Classifier != nil {
		switch p.cfg.Classifier(err) {
		case ClassPermanent:
			return false
		case ClassRetryable:
			return true
		}
	}
	for _, sentinel := range p.cfg.NonRetryableErrors {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	for _, sentinel := range p.cfg.RetryableErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// delayAfter computes the jittered backoff delay following failed attempt n.
// The first retry waits InitialDelay itself (Multiplier^0); each further
// retry multiplies it, capped at MaxDelay.
func (p *Policy) delayAfter(n int) time.Duration {
	base := float64(p.cfg.InitialDelay) * math.Pow(p.cfg.Multiplier, float64(n-1))
	if base > float64(p.cfg.MaxDelay) {
		base = float64(p.cfg.MaxDelay)
	}
	if p.cfg.JitterFactor > 0 {
		base *= 1 + p.cfg.JitterFactor*(2*rand.Float64()-1)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

// wait sleeps for d, returning false if the context was cancelled first.
func (p *Policy) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
