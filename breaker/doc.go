// Package breaker provides per-resource-key circuit breaking for the engine.
// Each key maps to exactly one breaker: repeated consecutive failures open
// it, calls fail fast while open, and after a cool-down a single trial call
// decides whether it closes again.
package breaker
