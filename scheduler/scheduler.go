package scheduler

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/avelis/crank/task"
)

// Executor runs a work item's body. The facade installs an executor that
// routes the body through retry and circuit-breaking; the default executor
// calls the body directly.
type Executor func(ctx context.Context, item *task.Item) error

// Config holds scheduler settings.
type Config struct {
	// QueueCapacity bounds the number of items waiting for dispatch.
	QueueCapacity int

	// InitialWorkers is the worker count at Start.
	InitialWorkers int

	// MinWorkers and MaxWorkers bound runtime resizing. The worker count is
	// only changed through SetWorkerCount, driven by the optimizer's
	// concurrency decisions.
	MinWorkers int
	MaxWorkers int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:  256,
		InitialWorkers: 4,
		MinWorkers:     1,
		MaxWorkers:     16,
	}
}

// Statistics is a point-in-time summary of scheduler state.
type Statistics struct {
	Pending       int
	Running       int
	Completed     uint64
	Failed        uint64
	Rejected      uint64
	Workers       int
	QueueCapacity int
}

// Scheduler drains a priority queue with a bounded, resizable worker pool.
// Items dequeue highest priority first, FIFO within a priority. All methods
// are safe for concurrent use.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue  itemHeap
	seq    uint64
	all    map[uuid.UUID]*task.Item
	active map[uuid.UUID]*task.Item

	capacity int
	min      int
	max      int
	target   int
	workers  map[int]struct{}

	started bool
	stopped bool

	completed uint64
	failed    uint64
	rejected  uint64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	exec        Executor
	onStarted   func(*task.Item)
	onCompleted func(*task.Item)
	onFailed    func(*task.Item, error)

	logger *slog.Logger
}

// New creates a stopped Scheduler, normalizing invalid config values.
func New(cfg Config, exec Executor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.MinWorkers < 1 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers < cfg.MinWorkers {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	if cfg.InitialWorkers < cfg.MinWorkers {
		cfg.InitialWorkers = cfg.MinWorkers
	}
	if cfg.InitialWorkers > cfg.MaxWorkers {
		cfg.InitialWorkers = cfg.MaxWorkers
	}
	if exec == nil {
		exec = func(ctx context.Context, item *task.Item) error {
			return item.Action().Execute(ctx)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		all:      make(map[uuid.UUID]*task.Item),
		active:   make(map[uuid.UUID]*task.Item),
		capacity: cfg.QueueCapacity,
		min:      cfg.MinWorkers,
		max:      cfg.MaxWorkers,
		target:   cfg.InitialWorkers,
		workers:  make(map[int]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		exec:     exec,
		logger:   logger.With("component", "scheduler"),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetOnStarted installs the callback fired when an item is dispatched.
func (s *Scheduler) SetOnStarted(fn func(*task.Item)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStarted = fn
}

// SetOnCompleted installs the callback fired after an item completes.
func (s *Scheduler) SetOnCompleted(fn func(*task.Item)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onCompleted = fn
}

// SetOnFailed installs the callback fired after an item fails. The error is
// the one captured at the execution boundary.
func (s *Scheduler) SetOnFailed(fn func(*task.Item, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailed = fn
}

// Start spawns the initial workers. It is idempotent and has no effect on a
// stopped scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	s.spawnLocked()
	s.logger.Info("scheduler started",
		"workers", s.target,
		"queue_capacity", s.capacity)
}

// Enqueue offers an item for dispatch without blocking. It returns false
// when the queue is at capacity or the scheduler has been stopped.
func (s *Scheduler) Enqueue(item *task.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || len(s.queue) >= s.capacity {
		s.rejected++
		s.logger.Debug("item rejected",
			"item_id", item.ID(),
			"stopped", s.stopped,
			"queue_len", len(s.queue))
		return false
	}

	heap.Push(&s.queue, &queued{item: item, seq: s.seq})
	s.seq++
	s.all[item.ID()] = item
	s.cond.Signal()
	return true
}

// StopAsync marks the queue closed, rejecting new dispatch, then waits for
// in-flight items to reach a terminal state. The wait is bounded by ctx:
// on expiry the execution context is cancelled so remaining bodies can
// unwind cooperatively, and an error is returned. Idempotent.
func (s *Scheduler) StopAsync(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		s.logger.Warn("scheduler stop timed out, cancelling in-flight items")
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// SetWorkerCount resizes the pool at runtime, clamped to the configured
// bounds. Shrinking retires workers after they finish their current item.
// It returns the applied target.
func (s *Scheduler) SetWorkerCount(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n < s.min {
		n = s.min
	}
	if n > s.max {
		n = s.max
	}
	if n == s.target {
		return n
	}

	old := s.target
	s.target = n
	if s.started && !s.stopped {
		s.spawnLocked()
	}
	s.cond.Broadcast()
	s.logger.Info("worker count adjusted", "from", old, "to", n)
	return n
}

// WorkerCount returns the current target worker count.
func (s *Scheduler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// Bounds returns the configured min and max worker counts.
func (s *Scheduler) Bounds() (min, max int) {
	return s.min, s.max
}

// Task returns the item with the given id, whether pending, running or
// terminal.
func (s *Scheduler) Task(id uuid.UUID) (*task.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.all[id]
	return item, ok
}

// ActiveTasks returns the items currently executing.
func (s *Scheduler) ActiveTasks() []*task.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Item, 0, len(s.active))
	for _, item := range s.active {
		out = append(out, item)
	}
	return out
}

// AllTasks returns every item the scheduler has accepted.
func (s *Scheduler) AllTasks() []*task.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Item, 0, len(s.all))
	for _, item := range s.all {
		out = append(out, item)
	}
	return out
}

// Statistics returns a point-in-time summary.
func (s *Scheduler) Statistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Statistics{
		Pending:       len(s.queue),
		Running:       len(s.active),
		Completed:     s.completed,
		Failed:        s.failed,
		Rejected:      s.rejected,
		Workers:       s.target,
		QueueCapacity: s.capacity,
	}
}

// spawnLocked starts workers for every slot below target that has none.
// Caller holds s.mu.
func (s *Scheduler) spawnLocked() {
	for id := 0; id < s.target; id++ {
		if _, ok := s.workers[id]; ok {
			continue
		}
		s.workers[id] = struct{}{}
		s.wg.Add(1)
		go s.worker(id)
	}
}

// worker pulls the highest-priority available item and executes it. It
// retires when the scheduler stops or its slot falls above the target.
func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	logger := s.logger.With("worker_id", id)
	logger.Debug("worker started")

	for {
		s.mu.Lock()
		for !s.stopped && id < s.target && len(s.queue) == 0 {
			s.cond.Wait()
		}
		if s.stopped || id >= s.target {
			delete(s.workers, id)
			s.mu.Unlock()
			logger.Debug("worker retired")
			return
		}
		q := heap.Pop(&s.queue).(*queued)
		s.active[q.item.ID()] = q.item
		s.mu.Unlock()

		s.run(logger, q.item)

		s.mu.Lock()
		delete(s.active, q.item.ID())
		s.mu.Unlock()
	}
}

// run executes one item. A body error or panic is always caught at this
// boundary and converted to a Failed outcome, never propagated to crash the
// worker.
func (s *Scheduler) run(logger *slog.Logger, item *task.Item) {
	if !item.MarkRunning() {
		logger.Warn("item not in pending state at dispatch",
			"item_id", item.ID(),
			"state", item.State().String())
		return
	}

	s.mu.Lock()
	onStarted, onCompleted, onFailed := s.onStarted, s.onCompleted, s.onFailed
	s.mu.Unlock()

	if onStarted != nil {
		onStarted(item)
	}

	// The done channel closes only after the outcome has been routed to the
	// callbacks, so a waiter never observes a failure before it is recorded.
	defer item.NotifyDone()

	err := s.safeExec(item)
	if err != nil {
		item.MarkFailed(err)
		s.mu.Lock()
		s.failed++
		s.mu.Unlock()
		logger.Error("work item failed",
			"item_id", item.ID(),
			"attempts", item.Attempts(),
			"error", err)
		if onFailed != nil {
			onFailed(item, err)
		}
		return
	}

	item.MarkCompleted()
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
	logger.Debug("work item completed",
		"item_id", item.ID(),
		"duration", item.Duration())
	if onCompleted != nil {
		onCompleted(item)
	}
}

func (s *Scheduler) safeExec(item *task.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("work item panicked: %v", r)
		}
	}()
	return s.exec(s.ctx, item)
}
