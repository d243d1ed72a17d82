package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avelis/crank/monitor"
	"github.com/avelis/crank/optimizer"
)

// Snapshot is one dashboard capture: the performance snapshot taken at the
// tick plus the bottleneck analysis derived from the window ending there.
type Snapshot struct {
	CapturedAt  time.Time
	Performance monitor.Snapshot
	Analysis    monitor.BottleneckAnalysis
	Workers     int
}

// Config holds dashboard settings.
type Config struct {
	// Interval between captures.
	Interval time.Duration

	// HistorySize bounds the rolling capture history.
	HistorySize int
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		HistorySize: 60,
	}
}

// Dashboard periodically captures engine state. OnUpdate fires every
// capture; OnBottleneck fires when the analysis identifies a limiting
// dimension. Callbacks run on the dashboard goroutine and must not block.
type Dashboard struct {
	interval    time.Duration
	historySize int

	mon     *monitor.Monitor
	agg     *monitor.Aggregator
	sampler *optimizer.Sampler
	workers func() int

	OnUpdate     func(Snapshot)
	OnBottleneck func(monitor.BottleneckAnalysis)

	mu      sync.Mutex
	history []Snapshot
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool

	logger *slog.Logger
}

// New creates a stopped Dashboard. workers supplies the scheduler's current
// worker count for utilization analysis.
func New(
	cfg Config,
	mon *monitor.Monitor,
	agg *monitor.Aggregator,
	sampler *optimizer.Sampler,
	workers func() int,
	logger *slog.Logger,
) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Dashboard{
		interval:    cfg.Interval,
		historySize: cfg.HistorySize,
		mon:         mon,
		agg:         agg,
		sampler:     sampler,
		workers:     workers,
		logger:      logger.With("component", "metrics_dashboard"),
	}
}

// Start begins periodic capture. Idempotent.
func (d *Dashboard) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	go d.loop(d.stopCh, d.doneCh)
	d.logger.Debug("dashboard started", "interval", d.interval)
}

// StopAsync halts the capture loop, waiting for it to exit bounded by ctx.
// Idempotent.
func (d *Dashboard) StopAsync(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	close(d.stopCh)
	done := d.doneCh
	d.mu.Unlock()

	select {
	case <-done:
		d.logger.Debug("dashboard stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dashboard stop: %w", ctx.Err())
	}
}

// Capture takes a snapshot immediately, outside the periodic loop, feeding
// the aggregator window and history exactly like a tick does.
func (d *Dashboard) Capture() Snapshot {
	return d.capture()
}

// Snapshot returns the most recent capture; ok is false before the first
// one.
func (d *Dashboard) Snapshot() (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.history) == 0 {
		return Snapshot{}, false
	}
	return d.history[len(d.history)-1], true
}

// History returns a copy of the rolling capture history, oldest first.
func (d *Dashboard) History() []Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Snapshot, len(d.history))
	copy(out, d.history)
	return out
}

// FormattedReport renders the latest capture for an operator status surface.
func (d *Dashboard) FormattedReport() string {
	snap, ok := d.Snapshot()
	if !ok {
		return "Dashboard\n=========\n(no captures yet)\n"
	}

	var sb strings.Builder
	sb.WriteString("Dashboard\n")
	sb.WriteString("=========\n")
	sb.WriteString(d.mon.Report(snap.Performance))
	fmt.Fprintf(&sb, "workers:     %d\n", snap.Workers)
	fmt.Fprintf(&sb, "bottleneck:  %s\n", snap.Analysis.Limiting)
	fmt.Fprintf(&sb, "scale:       %s\n", snap.Analysis.Recommendation)
	fmt.Fprintf(&sb, "detail:      %s\n", snap.Analysis.Detail)
	return sb.String()
}

func (d *Dashboard) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			d.capture()
		}
	}
}

func (d *Dashboard) capture() Snapshot {
	workers := d.workers()
	perf := d.mon.Snapshot(d.sampler.ResourceState())
	d.agg.Ingest(perf)
	analysis := d.agg.Analyze(workers)

	snap := Snapshot{
		CapturedAt:  time.Now(),
		Performance: perf,
		Analysis:    analysis,
		Workers:     workers,
	}

	d.mu.Lock()
	d.history = append(d.history, snap)
	if len(d.history) > d.historySize {
		d.history = d.history[1:]
	}
	onUpdate := d.OnUpdate
	onBottleneck := d.OnBottleneck
	d.mu.Unlock()

	if onUpdate != nil {
		onUpdate(snap)
	}
	if onBottleneck != nil && analysis.Limiting != monitor.LimitNone {
		onBottleneck(analysis)
	}
	return snap
}
