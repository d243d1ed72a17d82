package optimizer

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ResourceState is the most recent sampled process utilization. It is an
// immutable value published atomically by the Sampler.
type ResourceState struct {
	// SampledAt is when the sample was taken; zero for the initial state.
	SampledAt time.Time

	// Goroutines is the live goroutine count.
	Goroutines int

	// HeapAllocBytes is the bytes of allocated heap objects.
	HeapAllocBytes uint64

	// HeapSysBytes is the bytes of heap obtained from the OS.
	HeapSysBytes uint64

	// MemoryUtilization is HeapAllocBytes/HeapSysBytes in [0, 1].
	MemoryUtilization float64

	// GCCPUFraction is the fraction of CPU spent in GC since process start.
	GCCPUFraction float64
}

// Saturation collapses the sample into a single [0, 1] pressure score. GC
// time dominates when the heap churns; memory utilization dominates when
// allocations pile up.
func (rs ResourceState) Saturation() float64 {
	gc := rs.GCCPUFraction * 4 // 25% GC CPU counts as fully saturated
	if gc > 1 {
		gc = 1
	}
	if gc > rs.MemoryUtilization {
		return gc
	}
	return rs.MemoryUtilization
}

// Config holds sampler settings.
type Config struct {
	// Interval between samples.
	Interval time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{Interval: time.Second}
}

// Sampler periodically captures a ResourceState. Readers obtain the latest
// sample via ResourceState without taking any lock shared with the sampling
// loop.
type Sampler struct {
	interval time.Duration
	latest   atomic.Value // ResourceState
	logger   *slog.Logger

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

// NewSampler creates a stopped Sampler.
func NewSampler(cfg Config, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	s := &Sampler{
		interval: cfg.Interval,
		logger:   logger.With("component", "adaptive_optimizer"),
	}
	s.latest.Store(ResourceState{})
	return s
}

// Start begins sampling on the configured interval. It is idempotent.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	// Take one sample immediately so early readers see real data.
	s.latest.Store(s.sample())

	go s.loop(s.stopCh, s.doneCh)
	s.logger.Debug("resource sampler started", "interval", s.interval)
}

// Stop halts sampling and waits for the loop to exit. It is idempotent.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Debug("resource sampler stopped")
}

// ResourceState returns the latest published sample.
func (s *Sampler) ResourceState() ResourceState {
	return s.latest.Load().(ResourceState)
}

func (s *Sampler) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.latest.Store(s.sample())
		}
	}
}

func (s *Sampler) sample() ResourceState {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	rs := ResourceState{
		SampledAt:      time.Now(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		GCCPUFraction:  ms.GCCPUFraction,
	}
	if ms.HeapSys > 0 {
		rs.MemoryUtilization = float64(ms.HeapAlloc) / float64(ms.HeapSys)
	}
	return rs
}
