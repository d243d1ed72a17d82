package monitor

import (
	"fmt"
	"sync"
)

// Limit identifies the dimension limiting overall throughput.
type Limit string

// Possible limiting dimensions.
const (
	LimitNone               Limit = "none"
	LimitQueueGrowth        Limit = "queue_growth"
	LimitWorkerSaturation   Limit = "worker_saturation"
	LimitResourceSaturation Limit = "resource_saturation"
)

// Scale is the concurrency recommendation derived from an analysis.
type Scale int

// Possible recommendations.
const (
	ScaleHold Scale = iota
	ScaleUp
	ScaleDown
)

// String returns a lowercase name for the recommendation.
func (s Scale) String() string {
	switch s {
	case ScaleUp:
		return "up"
	case ScaleDown:
		return "down"
	default:
		return "hold"
	}
}

// BottleneckAnalysis identifies the limiting dimension over a window of
// snapshots and recommends a concurrency change.
type BottleneckAnalysis struct {
	Limiting           Limit
	QueueGrowthRate    float64 // pending items per second, negative when draining
	WorkerUtilization  float64 // mean running/workerCount over the window, [0, 1]
	ResourceSaturation float64 // latest resource pressure, [0, 1]
	Recommendation     Scale
	Detail             string
}

// Aggregator ingests a sliding window of snapshots and derives bottleneck
// diagnoses from their trend. Safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	window []Snapshot
	size   int

	// Thresholds; tuned for interactive workloads, overridable per field.
	SaturationHigh  float64
	UtilizationHigh float64
	UtilizationLow  float64
}

// NewAggregator creates an Aggregator retaining up to size snapshots.
func NewAggregator(size int) *Aggregator {
	if size < 2 {
		size = 2
	}
	return &Aggregator{
		size:            size,
		SaturationHigh:  0.90,
		UtilizationHigh: 0.80,
		UtilizationLow:  0.20,
	}
}

// Ingest appends a snapshot, evicting the oldest when the window is full.
func (a *Aggregator) Ingest(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = append(a.window, s)
	if len(a.window) > a.size {
		a.window = a.window[1:]
	}
}

// Window returns a copy of the retained snapshots, oldest first.
func (a *Aggregator) Window() []Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Snapshot, len(a.window))
	copy(out, a.window)
	return out
}

// Analyze compares queue-depth growth, worker utilization and resource
// saturation across the window to identify the limiting factor.
// workerCount is the scheduler's current worker count.
func (a *Aggregator) Analyze(workerCount int) BottleneckAnalysis {
	a.mu.Lock()
	defer a.mu.Unlock()

	analysis := BottleneckAnalysis{
		Limiting:       LimitNone,
		Recommendation: ScaleHold,
		Detail:         "insufficient samples",
	}
	if len(a.window) < 2 {
		return analysis
	}

	first := a.window[0]
	last := a.window[len(a.window)-1]

	dt := last.Timestamp.Sub(first.Timestamp).Seconds()
	if dt > 0 {
		analysis.QueueGrowthRate = float64(last.Pending-first.Pending) / dt
	}

	if workerCount > 0 {
		var runningSum int64
		for _, s := range a.window {
			runningSum += s.Running
		}
		analysis.WorkerUtilization = float64(runningSum) / float64(len(a.window)) / float64(workerCount)
		if analysis.WorkerUtilization > 1 {
			analysis.WorkerUtilization = 1
		}
	}

	analysis.ResourceSaturation = last.Resource.Saturation()

	switch {
	case analysis.ResourceSaturation >= a.SaturationHigh:
		analysis.Limiting = LimitResourceSaturation
		analysis.Recommendation = ScaleDown
		analysis.Detail = fmt.Sprintf("resource saturation %.0f%% above %.0f%% threshold",
			analysis.ResourceSaturation*100, a.SaturationHigh*100)

	case analysis.QueueGrowthRate > 0 && analysis.WorkerUtilization >= a.UtilizationHigh:
		analysis.Limiting = LimitWorkerSaturation
		analysis.Recommendation = ScaleUp
		analysis.Detail = fmt.Sprintf("queue growing %.1f items/s with workers %.0f%% busy",
			analysis.QueueGrowthRate, analysis.WorkerUtilization*100)

	case analysis.QueueGrowthRate > 0:
		analysis.Limiting = LimitQueueGrowth
		analysis.Recommendation = ScaleUp
		analysis.Detail = fmt.Sprintf("queue growing %.1f items/s", analysis.QueueGrowthRate)

	case analysis.WorkerUtilization <= a.UtilizationLow && last.Pending == 0:
		analysis.Recommendation = ScaleDown
		analysis.Detail = fmt.Sprintf("workers %.0f%% idle with empty queue",
			(1-analysis.WorkerUtilization)*100)

	default:
		analysis.Detail = "steady state"
	}

	return analysis
}
