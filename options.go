package crank

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avelis/crank/breaker"
	"github.com/avelis/crank/dashboard"
	"github.com/avelis/crank/deadletter"
	"github.com/avelis/crank/optimizer"
	"github.com/avelis/crank/retry"
	"github.com/avelis/crank/scheduler"
)

// Options configures an Engine. Zero values fall back to each component's
// defaults; DefaultOptions returns the fully populated form.
type Options struct {
	Scheduler  scheduler.Config
	Retry      retry.Config
	Breaker    breaker.Config
	DeadLetter deadletter.Config
	Sampler    optimizer.Config
	Dashboard  dashboard.Config

	// AggregatorWindow is how many performance snapshots the bottleneck
	// analysis considers.
	AggregatorWindow int

	// AdaptiveConcurrency applies the aggregator's scale recommendation to
	// the scheduler worker count on every dashboard tick, within the
	// scheduler's configured bounds.
	AdaptiveConcurrency bool

	// Logger receives the engine's structured logs; slog.Default when nil.
	Logger *slog.Logger

	// MetricsRegisterer, when set, registers the engine's Prometheus
	// collectors against it. Nil disables metrics collection.
	MetricsRegisterer prometheus.Registerer
}

// DefaultOptions returns Options with every component at its defaults and
// adaptive concurrency enabled.
func DefaultOptions() Options {
	return Options{
		Scheduler:           scheduler.DefaultConfig(),
		Retry:               retry.DefaultConfig(),
		Breaker:             breaker.DefaultConfig(),
		DeadLetter:          deadletter.DefaultConfig(),
		Sampler:             optimizer.DefaultConfig(),
		Dashboard:           dashboard.DefaultConfig(),
		AggregatorWindow:    30,
		AdaptiveConcurrency: true,
	}
}
