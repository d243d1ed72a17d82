// Command crankbench runs the engine against a synthetic flaky workload and
// prints its operator reports, exercising retry, circuit breaking,
// dead-lettering and adaptive concurrency end to end.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/avelis/crank"
	"github.com/avelis/crank/internal/config"
	"github.com/avelis/crank/internal/logger"
	"github.com/avelis/crank/task"
)

var errSynthetic = errors.New("synthetic transient failure")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "crankbench:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "optional YAML config file")
	items := flag.Int("items", 50, "number of synthetic work items")
	failureRate := flag.Float64("failure-rate", 0.3, "probability a body attempt fails")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.LogLevel)

	opts := cfg.EngineOptions()
	opts.Logger = log
	opts.Retry.RetryableErrors = append(opts.Retry.RetryableErrors, errSynthetic)
	opts.MetricsRegisterer = prometheus.NewRegistry()
	log.Info("starting crankbench",
		"items", *items,
		"failure_rate", *failureRate,
		"max_retries", opts.Retry.MaxRetries)

	engine := crank.New(opts)
	engine.Subscribe(func(ev crank.Event) {
		if ev.Type == crank.EventBottleneckDetected {
			log.Info("bottleneck event", "detail", ev.Analysis.Detail)
		}
	})
	engine.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	for i := 0; i < *items; i++ {
		wg.Add(1)
		priority := i % 10
		go func() {
			defer wg.Done()
			_, err := engine.SubmitKeyed(ctx, synthetic(*failureRate), "synthetic", priority)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error("submit failed", "error", err)
			}
		}()
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-ctx.Done():
		log.Warn("interrupted, shutting down")
	}

	replayDeadLetters(ctx, engine, log.With("component", "crankbench"))

	fmt.Println(engine.DashboardReport())
	fmt.Println(engine.PerformanceReport())
	fmt.Println(engine.CircuitBreakerStatus())
	fmt.Println(engine.DeadLetterReport())

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return engine.StopAsync(stopCtx)
}

// synthetic returns a body that sleeps a few milliseconds and fails with a
// retryable error at the given rate.
func synthetic(failureRate float64) task.Action {
	return task.ActionFunc(func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(1+rand.Intn(10)) * time.Millisecond):
		}
		if rand.Float64() < failureRate {
			return fmt.Errorf("%w: simulated downstream error", errSynthetic)
		}
		return nil
	})
}

// replayDeadLetters gives every dead-lettered item one manual replay, the
// way an operator action would.
func replayDeadLetters(ctx context.Context, engine *crank.Engine, log *slog.Logger) {
	for _, entry := range engine.DeadLetters() {
		err := engine.RetryFailedTask(ctx, entry.ItemID)
		if err != nil {
			log.Warn("dead letter replay failed", "item_id", entry.ItemID, "error", err)
			continue
		}
		log.Info("dead letter replay succeeded", "item_id", entry.ItemID)
	}
}
