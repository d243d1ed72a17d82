// Package monitor observes scheduler lifecycle events, tracking per-item
// timing and aggregate counters, and derives bottleneck diagnoses from a
// sliding window of performance snapshots.
package monitor
