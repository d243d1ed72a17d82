package monitor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avelis/crank/optimizer"
	"github.com/avelis/crank/task"
)

// Snapshot is an immutable point-in-time view of engine performance.
type Snapshot struct {
	Timestamp time.Time

	// Item counts by state.
	Pending   int64
	Running   int64
	Completed int64
	Failed    int64

	// Throughput is completed items per second since the monitor started.
	Throughput float64

	// Latency summary over completed and failed items.
	AvgLatency time.Duration
	MinLatency time.Duration
	MaxLatency time.Duration

	// Resource is the utilization sample supplied at snapshot time.
	Resource optimizer.ResourceState
}

// Monitor tracks per-item timing and aggregate counters. It observes
// lifecycle transitions; it never drives them. Safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	pending   int64
	running   int64
	completed int64
	failed    int64

	latencyCount int64
	latencyTotal time.Duration
	latencyMin   time.Duration
	latencyMax   time.Duration

	startedAt time.Time
	metrics   *Metrics
	logger    *slog.Logger
}

// NewMonitor creates a Monitor. metrics may be nil to disable Prometheus
// collection.
func NewMonitor(metrics *Metrics, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		startedAt: time.Now(),
		metrics:   metrics,
		logger:    logger.With("component", "execution_monitor"),
	}
}

// Register records a newly submitted item as pending.
func (m *Monitor) Register(item *task.Item) {
	m.mu.Lock()
	m.pending++
	pending := m.pending
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.queueDepth.Set(float64(pending))
	}
	m.logger.Debug("item registered", "item_id", item.ID(), "pending", pending)
}

// Unregister backs out a registration whose enqueue was rejected, so the
// pending count never drifts.
func (m *Monitor) Unregister(item *task.Item) {
	m.mu.Lock()
	if m.pending > 0 {
		m.pending--
	}
	pending := m.pending
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.queueDepth.Set(float64(pending))
	}
}

// Start records an item's dispatch: pending becomes running.
func (m *Monitor) Start(item *task.Item) {
	m.mu.Lock()
	if m.pending > 0 {
		m.pending--
	}
	m.running++
	pending, running := m.pending, m.running
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.queueDepth.Set(float64(pending))
		m.metrics.runningItems.Set(float64(running))
	}
}

// Complete records an item's terminal transition, updating counters and the
// latency aggregates.
func (m *Monitor) Complete(item *task.Item, success bool) {
	duration := item.Duration()

	m.mu.Lock()
	if m.running > 0 {
		m.running--
	}
	if success {
		m.completed++
	} else {
		m.failed++
	}
	m.latencyCount++
	m.latencyTotal += duration
	if m.latencyMin == 0 || duration < m.latencyMin {
		m.latencyMin = duration
	}
	if duration > m.latencyMax {
		m.latencyMax = duration
	}
	running := m.running
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.runningItems.Set(float64(running))
		m.metrics.taskDuration.Observe(duration.Seconds())
		if success {
			m.metrics.tasksCompleted.Inc()
		} else {
			m.metrics.tasksFailed.Inc()
		}
	}
}

// Snapshot composes current counts, latency stats and the supplied resource
// state into an immutable value.
func (m *Monitor) Snapshot(rs optimizer.ResourceState) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		Timestamp:  time.Now(),
		Pending:    m.pending,
		Running:    m.running,
		Completed:  m.completed,
		Failed:     m.failed,
		MinLatency: m.latencyMin,
		MaxLatency: m.latencyMax,
		Resource:   rs,
	}
	if m.latencyCount > 0 {
		s.AvgLatency = m.latencyTotal / time.Duration(m.latencyCount)
	}
	if elapsed := time.Since(m.startedAt).Seconds(); elapsed > 0 {
		s.Throughput = float64(m.completed) / elapsed
	}
	return s
}

// Report renders a human-readable summary of a snapshot.
func (m *Monitor) Report(s Snapshot) string {
	var sb strings.Builder
	sb.WriteString("Performance Snapshot\n")
	sb.WriteString("====================\n")
	fmt.Fprintf(&sb, "captured:    %s\n", s.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&sb, "pending:     %d\n", s.Pending)
	fmt.Fprintf(&sb, "running:     %d\n", s.Running)
	fmt.Fprintf(&sb, "completed:   %d\n", s.Completed)
	fmt.Fprintf(&sb, "failed:      %d\n", s.Failed)
	fmt.Fprintf(&sb, "throughput:  %.2f items/s\n", s.Throughput)
	fmt.Fprintf(&sb, "latency:     avg=%s min=%s max=%s\n", s.AvgLatency, s.MinLatency, s.MaxLatency)
	fmt.Fprintf(&sb, "goroutines:  %d\n", s.Resource.Goroutines)
	fmt.Fprintf(&sb, "heap:        %d/%d bytes (%.1f%%)\n",
		s.Resource.HeapAllocBytes, s.Resource.HeapSysBytes, s.Resource.MemoryUtilization*100)
	fmt.Fprintf(&sb, "saturation:  %.1f%%\n", s.Resource.Saturation()*100)
	return sb.String()
}
