package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors the Monitor feeds. Registration is
// opt-in: engines embedded in processes without a metrics endpoint simply
// pass a nil *Metrics to NewMonitor.
type Metrics struct {
	tasksCompleted prometheus.Counter
	tasksFailed    prometheus.Counter
	taskDuration   prometheus.Histogram
	queueDepth     prometheus.Gauge
	runningItems   prometheus.Gauge
}

// NewMetrics creates and registers the engine's collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tasksCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crank",
			Name:      "tasks_completed_total",
			Help:      "Work items that reached the Completed state.",
		}),
		tasksFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crank",
			Name:      "tasks_failed_total",
			Help:      "Work items that reached the Failed state.",
		}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crank",
			Name:      "task_duration_seconds",
			Help:      "Running duration of work items, dispatch to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crank",
			Name:      "queue_depth",
			Help:      "Work items waiting for dispatch.",
		}),
		runningItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "crank",
			Name:      "running_items",
			Help:      "Work items currently executing.",
		}),
	}
}
