package config

import (
	"time"

	"github.com/avelis/crank"
	"github.com/avelis/crank/breaker"
	"github.com/avelis/crank/dashboard"
	"github.com/avelis/crank/deadletter"
	"github.com/avelis/crank/optimizer"
	"github.com/avelis/crank/retry"
	"github.com/avelis/crank/scheduler"
)

// Config holds all settings a crank binary needs, grouped per component.
type Config struct {
	LogLevel   string           `mapstructure:"log_level"  validate:"required,oneof=debug info warn error"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"  validate:"required"`
	Retry      RetryConfig      `mapstructure:"retry"      validate:"required"`
	Breaker    BreakerConfig    `mapstructure:"breaker"    validate:"required"`
	DeadLetter DeadLetterConfig `mapstructure:"dead_letter" validate:"required"`
	Dashboard  DashboardConfig  `mapstructure:"dashboard"  validate:"required"`
}

// SchedulerConfig contains worker pool and queue settings.
type SchedulerConfig struct {
	QueueCapacity  int `mapstructure:"queue_capacity"  validate:"required,gt=0"`
	InitialWorkers int `mapstructure:"initial_workers" validate:"required,gte=1"`
	MinWorkers     int `mapstructure:"min_workers"     validate:"required,gte=1"`
	MaxWorkers     int `mapstructure:"max_workers"     validate:"required,gtefield=MinWorkers"`
}

// RetryConfig contains backoff settings.
type RetryConfig struct {
	MaxRetries     int     `mapstructure:"max_retries"      validate:"gte=0"`
	InitialDelayMs int     `mapstructure:"initial_delay_ms" validate:"required,gt=0"`
	MaxDelayMs     int     `mapstructure:"max_delay_ms"     validate:"required,gtefield=InitialDelayMs"`
	Multiplier     float64 `mapstructure:"multiplier"       validate:"required,gte=1"`
	JitterFactor   float64 `mapstructure:"jitter_factor"    validate:"gte=0,lte=1"`
}

// BreakerConfig contains circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold uint32 `mapstructure:"failure_threshold" validate:"required,gt=0"`
	CooldownMs       int    `mapstructure:"cooldown_ms"       validate:"required,gt=0"`
}

// DeadLetterConfig contains dead letter queue settings.
type DeadLetterConfig struct {
	MaxReplays int `mapstructure:"max_replays" validate:"required,gt=0"`
}

// DashboardConfig contains metrics dashboard settings.
type DashboardConfig struct {
	IntervalMs  int `mapstructure:"interval_ms"  validate:"required,gt=0"`
	HistorySize int `mapstructure:"history_size" validate:"required,gt=0"`
}

// EngineOptions converts the loaded configuration to engine Options.
func (c *Config) EngineOptions() crank.Options {
	opts := crank.DefaultOptions()
	opts.Scheduler = scheduler.Config{
		QueueCapacity:  c.Scheduler.QueueCapacity,
		InitialWorkers: c.Scheduler.InitialWorkers,
		MinWorkers:     c.Scheduler.MinWorkers,
		MaxWorkers:     c.Scheduler.MaxWorkers,
	}
	opts.Retry = retry.Config{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: time.Duration(c.Retry.InitialDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.Retry.MaxDelayMs) * time.Millisecond,
		Multiplier:   c.Retry.Multiplier,
		JitterFactor: c.Retry.JitterFactor,
	}
	opts.Breaker = breaker.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		Cooldown:         time.Duration(c.Breaker.CooldownMs) * time.Millisecond,
	}
	opts.DeadLetter = deadletter.Config{MaxReplays: c.DeadLetter.MaxReplays}
	opts.Dashboard = dashboard.Config{
		Interval:    time.Duration(c.Dashboard.IntervalMs) * time.Millisecond,
		HistorySize: c.Dashboard.HistorySize,
	}
	opts.Sampler = optimizer.DefaultConfig()
	return opts
}
