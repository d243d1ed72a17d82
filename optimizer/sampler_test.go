package optimizer

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func TestSamplerPublishesSamples(t *testing.T) {
	s := NewSampler(Config{Interval: 10 * time.Millisecond}, testLogger())

	// Before Start the initial zero state is readable.
	assert.True(t, s.ResourceState().SampledAt.IsZero())

	s.Start()
	defer s.Stop()

	rs := s.ResourceState()
	require.False(t, rs.SampledAt.IsZero(), "Start must take an immediate sample")
	assert.Positive(t, rs.Goroutines)
	assert.Positive(t, rs.HeapSysBytes)
	assert.GreaterOrEqual(t, rs.MemoryUtilization, 0.0)
	assert.LessOrEqual(t, rs.MemoryUtilization, 1.0)

	first := rs.SampledAt
	assert.Eventually(t, func() bool {
		return s.ResourceState().SampledAt.After(first)
	}, time.Second, 5*time.Millisecond, "sampler should keep publishing")
}

func TestSamplerStartStopIdempotent(t *testing.T) {
	s := NewSampler(Config{Interval: 10 * time.Millisecond}, testLogger())

	s.Start()
	s.Start()
	s.Stop()
	s.Stop()

	// Restart works after a stop.
	s.Start()
	assert.False(t, s.ResourceState().SampledAt.IsZero())
	s.Stop()
}

func TestResourceStateReadersNeverBlock(t *testing.T) {
	s := NewSampler(Config{Interval: time.Millisecond}, testLogger())
	s.Start()
	defer s.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = s.ResourceState()
			}
		}()
	}
	wg.Wait()
}

func TestSaturation(t *testing.T) {
	assert.Equal(t, 0.0, ResourceState{}.Saturation())

	memBound := ResourceState{MemoryUtilization: 0.9, GCCPUFraction: 0.01}
	assert.InDelta(t, 0.9, memBound.Saturation(), 0.001)

	gcBound := ResourceState{MemoryUtilization: 0.2, GCCPUFraction: 0.2}
	assert.InDelta(t, 0.8, gcBound.Saturation(), 0.001)

	clamped := ResourceState{GCCPUFraction: 0.5}
	assert.Equal(t, 1.0, clamped.Saturation())
}
