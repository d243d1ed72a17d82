// Package scheduler implements the engine's bounded worker pool: a
// thread-safe priority queue drained by a runtime-resizable set of workers,
// with a panic-safe execution boundary and completion/failure callbacks.
package scheduler
