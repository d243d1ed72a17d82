package dashboard

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelis/crank/monitor"
	"github.com/avelis/crank/optimizer"
	"github.com/avelis/crank/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func testDashboard(cfg Config) (*Dashboard, *monitor.Monitor) {
	logger := testLogger()
	mon := monitor.NewMonitor(nil, logger)
	agg := monitor.NewAggregator(16)
	sampler := optimizer.NewSampler(optimizer.Config{Interval: 10 * time.Millisecond}, logger)
	d := New(cfg, mon, agg, sampler, func() int { return 2 }, logger)
	return d, mon
}

func TestSnapshotBeforeFirstCapture(t *testing.T) {
	d, _ := testDashboard(Config{Interval: time.Hour, HistorySize: 4})

	_, ok := d.Snapshot()
	assert.False(t, ok)
	assert.Contains(t, d.FormattedReport(), "no captures yet")
}

func TestCaptureComposesState(t *testing.T) {
	d, mon := testDashboard(Config{Interval: time.Hour, HistorySize: 4})

	item := task.New(task.ActionFunc(func(ctx context.Context) error { return nil }))
	mon.Register(item)

	snap := d.Capture()
	assert.Equal(t, int64(1), snap.Performance.Pending)
	assert.Equal(t, 2, snap.Workers)
	assert.False(t, snap.CapturedAt.IsZero())

	latest, ok := d.Snapshot()
	require.True(t, ok)
	assert.Equal(t, snap.CapturedAt, latest.CapturedAt)
}

func TestPeriodicLoopAndHistoryBound(t *testing.T) {
	d, _ := testDashboard(Config{Interval: 5 * time.Millisecond, HistorySize: 3})

	d.Start()
	defer func() {
		require.NoError(t, d.StopAsync(context.Background()))
	}()

	assert.Eventually(t, func() bool {
		return len(d.History()) == 3
	}, 2*time.Second, 5*time.Millisecond)

	history := d.History()
	assert.Len(t, history, 3)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CapturedAt.After(history[i-1].CapturedAt))
	}
}

func TestCallbacksFire(t *testing.T) {
	d, mon := testDashboard(Config{Interval: 5 * time.Millisecond, HistorySize: 8})

	var mu sync.Mutex
	updates := 0
	bottlenecks := 0
	d.OnUpdate = func(Snapshot) {
		mu.Lock()
		updates++
		mu.Unlock()
	}
	d.OnBottleneck = func(monitor.BottleneckAnalysis) {
		mu.Lock()
		bottlenecks++
		mu.Unlock()
	}

	// Grow pending count so the analysis detects queue growth.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				mon.Register(task.New(task.ActionFunc(func(ctx context.Context) error { return nil })))
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer close(stop)

	d.Start()
	defer func() {
		require.NoError(t, d.StopAsync(context.Background()))
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return updates > 2 && bottlenecks > 0
	}, 2*time.Second, 5*time.Millisecond, "update and bottleneck callbacks must genuinely fire")
}

func TestStartStopIdempotent(t *testing.T) {
	d, _ := testDashboard(Config{Interval: 5 * time.Millisecond, HistorySize: 4})

	d.Start()
	d.Start()
	require.NoError(t, d.StopAsync(context.Background()))
	require.NoError(t, d.StopAsync(context.Background()))

	// Restart works.
	d.Start()
	require.NoError(t, d.StopAsync(context.Background()))
}

func TestFormattedReport(t *testing.T) {
	d, _ := testDashboard(Config{Interval: time.Hour, HistorySize: 4})
	d.Capture()

	report := d.FormattedReport()
	assert.Contains(t, report, "Dashboard")
	assert.Contains(t, report, "workers:     2")
	assert.Contains(t, report, "bottleneck:")
	assert.Contains(t, report, "scale:")
}
