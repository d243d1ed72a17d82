package crank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelis/crank/breaker"
	"github.com/avelis/crank/dashboard"
	"github.com/avelis/crank/deadletter"
	"github.com/avelis/crank/monitor"
	"github.com/avelis/crank/optimizer"
	"github.com/avelis/crank/retry"
	"github.com/avelis/crank/scheduler"
	"github.com/avelis/crank/task"
)

// Common errors returned by the Engine.
var (
	// ErrStopped is returned when work is submitted to an engine that was
	// never started or has been shut down.
	ErrStopped = errors.New("engine is stopped")

	// ErrQueueFull is returned when the scheduler queue is at capacity.
	// It is a saturation rejection, not a task failure: the body was never
	// executed.
	ErrQueueFull = errors.New("work queue is full")
)

// Engine is the composition root wiring the scheduler, retry policy,
// circuit breakers, dead letter queue, monitor, optimizer and dashboard
// into a single submit/observe/report API.
type Engine struct {
	opts   Options
	logger *slog.Logger

	scheduler *scheduler.Scheduler
	policy    *retry.Policy
	breakers  *breaker.Registry
	dlq       *deadletter.Queue
	mon       *monitor.Monitor
	agg       *monitor.Aggregator
	sampler   *optimizer.Sampler
	dash      *dashboard.Dashboard
	bus       *eventBus

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a stopped Engine from opts.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AggregatorWindow <= 0 {
		opts.AggregatorWindow = DefaultOptions().AggregatorWindow
	}

	var metrics *monitor.Metrics
	if opts.MetricsRegisterer != nil {
		metrics = monitor.NewMetrics(opts.MetricsRegisterer)
	}

	// A breaker-open rejection must surface immediately without burning
	// retry attempts.
	retryCfg := opts.Retry
	retryCfg.NonRetryableErrors = append(retryCfg.NonRetryableErrors, breaker.ErrOpen)

	e := &Engine{
		opts:     opts,
		logger:   logger.With("component", "engine"),
		policy:   retry.NewPolicy(retryCfg, logger),
		breakers: breaker.NewRegistry(opts.Breaker, logger),
		dlq:      deadletter.NewQueue(opts.DeadLetter, logger),
		mon:      monitor.NewMonitor(metrics, logger),
		agg:      monitor.NewAggregator(opts.AggregatorWindow),
		sampler:  optimizer.NewSampler(opts.Sampler, logger),
		bus:      newEventBus(logger),
	}

	e.scheduler = scheduler.New(opts.Scheduler, e.execute, logger)
	e.scheduler.SetOnStarted(e.handleStarted)
	e.scheduler.SetOnCompleted(e.handleCompleted)
	e.scheduler.SetOnFailed(e.handleFailed)

	e.dash = dashboard.New(opts.Dashboard, e.mon, e.agg, e.sampler, e.scheduler.WorkerCount, logger)
	e.dash.OnUpdate = e.handleDashboardUpdate
	e.dash.OnBottleneck = e.handleBottleneck

	return e
}

// Subscribe registers fn to receive engine events. Subscribers run on
// engine goroutines and must not block.
func (e *Engine) Subscribe(fn Subscriber) {
	e.bus.subscribe(fn)
}

// Start brings up the sampler, scheduler and dashboard. Idempotent; a
// stopped engine cannot be restarted.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started || e.stopped {
		return
	}
	e.started = true
	e.sampler.Start()
	e.scheduler.Start()
	e.dash.Start()
	e.logger.Info("engine started",
		"workers", e.scheduler.WorkerCount(),
		"adaptive_concurrency", e.opts.AdaptiveConcurrency)
}

// StopAsync shuts the engine down: the scheduler stops accepting dispatch
// and drains in-flight items bounded by ctx, then the dashboard and sampler
// stop. Idempotent.
func (e *Engine) StopAsync(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	err := e.scheduler.StopAsync(ctx)
	if dashErr := e.dash.StopAsync(ctx); err == nil {
		err = dashErr
	}
	e.sampler.Stop()
	e.logger.Info("engine stopped")
	return err
}

// Enqueue offers an item for execution without blocking. It returns
// ErrStopped before Start or after StopAsync, and ErrQueueFull when the
// queue is at capacity; neither counts as a task failure.
func (e *Engine) Enqueue(item *task.Item) error {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	e.mu.Unlock()

	e.mon.Register(item)
	if !e.scheduler.Enqueue(item) {
		e.mon.Unregister(item)
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, e.scheduler.Statistics().QueueCapacity)
	}
	return nil
}

// Submit wraps action in a new item with the given priority, enqueues it
// and blocks until the item reaches a terminal state or ctx is cancelled.
// The returned item carries the outcome; a business-logic failure is
// reported on the item, not as the returned error.
func (e *Engine) Submit(ctx context.Context, action task.Action, priority int) (*task.Item, error) {
	item := task.New(action)
	item.SetPriority(priority)
	return item, e.SubmitItem(ctx, item)
}

// SubmitKeyed is Submit for work bound to a circuit-breaker resource key.
func (e *Engine) SubmitKeyed(ctx context.Context, action task.Action, key string, priority int) (*task.Item, error) {
	item := task.NewKeyed(action, key)
	item.SetPriority(priority)
	return item, e.SubmitItem(ctx, item)
}

// SubmitItem enqueues item and blocks until it reaches a terminal state or
// ctx is cancelled. Completion is signaled through the item's done channel,
// not by polling.
func (e *Engine) SubmitItem(ctx context.Context, item *task.Item) error {
	if err := e.Enqueue(item); err != nil {
		return err
	}
	select {
	case <-item.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryFailedTask re-executes the action of a dead-lettered item through the
// retry policy and circuit breakers, and records the outcome back into the
// dead letter queue. A successful replay resolves the entry.
func (e *Engine) RetryFailedTask(ctx context.Context, id uuid.UUID) error {
	entry, err := e.dlq.Entry(id)
	if err != nil {
		return err
	}
	if entry.Status == deadletter.StatusExhausted {
		return fmt.Errorf("%w: %s", deadletter.ErrExhausted, id)
	}

	item, ok := e.scheduler.Task(id)
	if !ok {
		return fmt.Errorf("work item %s no longer known to the scheduler", id)
	}

	e.logger.Info("replaying dead-lettered item", "item_id", id)
	res := e.policy.Execute(ctx, func(ctx context.Context) error {
		return e.runOnce(ctx, item)
	})
	if res.Cancelled {
		return fmt.Errorf("replay cancelled: %w", res.Err)
	}
	return e.dlq.RecordRetryAttempt(id, res.Success)
}

// execute is the scheduler's executor: the item body routed through the
// retry policy and, when the item carries a resource key, its circuit
// breaker.
func (e *Engine) execute(ctx context.Context, item *task.Item) error {
	res := e.policy.Execute(ctx, func(ctx context.Context) error {
		return e.runOnce(ctx, item)
	})
	item.RecordAttempts(res.AttemptCount())
	if res.Success {
		return nil
	}
	if res.Cancelled && res.Err == nil {
		return ctx.Err()
	}
	return res.Err
}

func (e *Engine) runOnce(ctx context.Context, item *task.Item) error {
	if key := item.Key(); key != "" {
		return e.breakers.GetOrCreate(key).Execute(func() error {
			return item.Action().Execute(ctx)
		})
	}
	return item.Action().Execute(ctx)
}

func (e *Engine) handleStarted(item *task.Item) {
	e.mon.Start(item)
	e.bus.publish(Event{Type: EventTaskStarted, At: time.Now(), Item: item})
}

func (e *Engine) handleCompleted(item *task.Item) {
	e.mon.Complete(item, true)
	e.bus.publish(Event{Type: EventTaskCompleted, At: time.Now(), Item: item})
}

func (e *Engine) handleFailed(item *task.Item, err error) {
	e.mon.Complete(item, false)
	// A cancellation is a distinct outcome: never retried, never
	// dead-lettered.
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		e.dlq.Add(item, err)
	}
	e.bus.publish(Event{Type: EventTaskFailed, At: time.Now(), Item: item, Err: err})
}

func (e *Engine) handleDashboardUpdate(snap dashboard.Snapshot) {
	if e.opts.AdaptiveConcurrency {
		current := e.scheduler.WorkerCount()
		switch snap.Analysis.Recommendation {
		case monitor.ScaleUp:
			e.scheduler.SetWorkerCount(current + 1)
		case monitor.ScaleDown:
			e.scheduler.SetWorkerCount(current - 1)
		}
	}
	e.bus.publish(Event{Type: EventMetricsUpdated, At: time.Now(), Dashboard: &snap})
}

func (e *Engine) handleBottleneck(a monitor.BottleneckAnalysis) {
	e.logger.Warn("bottleneck detected",
		"limiting", string(a.Limiting),
		"recommendation", a.Recommendation.String(),
		"detail", a.Detail)
	e.bus.publish(Event{Type: EventBottleneckDetected, At: time.Now(), Analysis: &a})
}

// PerformanceSnapshot composes the monitor's current counters with the
// latest resource sample.
func (e *Engine) PerformanceSnapshot() monitor.Snapshot {
	return e.mon.Snapshot(e.sampler.ResourceState())
}

// PerformanceReport renders the current performance snapshot as text.
func (e *Engine) PerformanceReport() string {
	return e.mon.Report(e.PerformanceSnapshot())
}

// DashboardSnapshot returns the most recent dashboard capture; ok is false
// before the first one.
func (e *Engine) DashboardSnapshot() (dashboard.Snapshot, bool) {
	return e.dash.Snapshot()
}

// DashboardReport renders the latest dashboard capture as text.
func (e *Engine) DashboardReport() string {
	return e.dash.FormattedReport()
}

// DeadLetterReport renders the dead letter queue as text.
func (e *Engine) DeadLetterReport() string {
	return e.dlq.FormattedReport()
}

// DeadLetters returns the entries still awaiting a successful replay.
func (e *Engine) DeadLetters() []deadletter.Entry {
	return e.dlq.PendingRetries()
}

// DeadLetterEntry returns the dead letter entry for the given item id.
func (e *Engine) DeadLetterEntry(id uuid.UUID) (deadletter.Entry, error) {
	return e.dlq.Entry(id)
}

// CircuitBreakerStatus renders all circuit breakers as text.
func (e *Engine) CircuitBreakerStatus() string {
	return e.breakers.Status()
}

// SchedulerStatistics returns the scheduler's point-in-time summary.
func (e *Engine) SchedulerStatistics() scheduler.Statistics {
	return e.scheduler.Statistics()
}

// Task returns the item with the given id, if the engine has seen it.
func (e *Engine) Task(id uuid.UUID) (*task.Item, bool) {
	return e.scheduler.Task(id)
}

// ActiveTasks returns the items currently executing.
func (e *Engine) ActiveTasks() []*task.Item {
	return e.scheduler.ActiveTasks()
}

// AllTasks returns every item the engine has accepted.
func (e *Engine) AllTasks() []*task.Item {
	return e.scheduler.AllTasks()
}
