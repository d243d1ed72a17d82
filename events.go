package crank

import (
	"log/slog"
	"sync"
	"time"

	"github.com/avelis/crank/dashboard"
	"github.com/avelis/crank/monitor"
	"github.com/avelis/crank/task"
)

// EventType identifies the kind of engine event.
type EventType string

// Event types published by the Engine.
const (
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskFailed         EventType = "task_failed"
	EventMetricsUpdated     EventType = "metrics_updated"
	EventBottleneckDetected EventType = "bottleneck_detected"
)

// Event is published to subscribers when engine state changes. Exactly one
// of the payload fields is populated, matching the event type.
type Event struct {
	Type EventType
	At   time.Time

	// Item is set for task lifecycle events. It is terminal (and therefore
	// read-only) for completed and failed events.
	Item *task.Item

	// Err is set for task_failed events.
	Err error

	// Dashboard is set for metrics_updated events.
	Dashboard *dashboard.Snapshot

	// Analysis is set for bottleneck_detected events.
	Analysis *monitor.BottleneckAnalysis
}

// Subscriber receives engine events. Subscribers run on engine goroutines
// and must not block; hand heavy work off to your own goroutine.
type Subscriber func(Event)

// eventBus fans events out to registered subscribers. The subscriber slice
// is copied under the read lock before dispatch so a slow subscriber never
// holds up registration.
type eventBus struct {
	mu     sync.RWMutex
	subs   []Subscriber
	logger *slog.Logger
}

func newEventBus(logger *slog.Logger) *eventBus {
	return &eventBus{
		logger: logger.With("component", "event_bus"),
	}
}

func (b *eventBus) subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
	b.logger.Debug("subscriber registered", "subscriber_count", len(b.subs))
}

func (b *eventBus) publish(ev Event) {
	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}
