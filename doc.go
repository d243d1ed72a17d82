// Package crank is a reusable, in-process resilient work-execution engine:
// a bounded worker pool that runs opaque units of work concurrently,
// classifies and recovers from their failures (retry with backoff, circuit
// breaking, dead-lettering), and exposes live performance snapshots used to
// adapt concurrency under load.
//
// The Engine is the composition root. Callers submit work items wrapping
// arbitrary application logic, subscribe to lifecycle events for progress
// reporting, and poll the reporting accessors for operator diagnostics.
package crank
