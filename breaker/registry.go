package breaker

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is rejected because the breaker for its
// key is open (or a half-open trial slot is already taken). The wrapped
// operation is not invoked and no retry attempt should be consumed.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds circuit breaker settings applied to every key in a Registry.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// breaker.
	FailureThreshold uint32

	// Cooldown is how long an open breaker rejects calls before admitting a
	// single half-open trial.
	Cooldown time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// Breaker gates calls against one resource key.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// Execute runs op through the breaker. While open it returns ErrOpen without
// invoking op; otherwise it returns op's error and feeds the outcome into
// the breaker's failure counting.
func (b *Breaker) Execute(op func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrOpen, b.cb.Name())
	}
	return err
}

// State returns the current breaker state name (closed, half-open, open).
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// ConsecutiveFailures returns the current consecutive failure count.
func (b *Breaker) ConsecutiveFailures() uint32 {
	return b.cb.Counts().ConsecutiveFailures
}

// Registry owns one Breaker per resource key. It is safe for concurrent use
// from every worker; keys are created on first use and never removed.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry applying cfg to every key it creates.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		logger:   logger.With("component", "circuit_breaker_registry"),
	}
}

// GetOrCreate returns the singleton breaker for key, creating it on first
// use.
func (r *Registry) GetOrCreate(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}

	threshold := r.cfg.FailureThreshold
	logger := r.logger
	b = &Breaker{
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: key,
			// Exactly one trial call while half-open.
			MaxRequests: 1,
			Timeout:     r.cfg.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Info("circuit breaker state change",
					"key", name,
					"from", from.String(),
					"to", to.String())
			},
		}),
	}
	r.breakers[key] = b
	return b
}

// Keys returns the registered resource keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Status renders an operator-facing summary of every breaker.
func (r *Registry) Status() string {
	keys := r.Keys()

	var sb strings.Builder
	sb.WriteString("Circuit Breakers\n")
	sb.WriteString("================\n")
	if len(keys) == 0 {
		sb.WriteString("(none registered)\n")
		return sb.String()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range keys {
		b := r.breakers[key]
		counts := b.cb.Counts()
		fmt.Fprintf(&sb, "%-24s state=%-9s consecutive_failures=%d total_failures=%d total_successes=%d\n",
			key,
			b.cb.State().String(),
			counts.ConsecutiveFailures,
			counts.TotalFailures,
			counts.TotalSuccesses)
	}
	return sb.String()
}
