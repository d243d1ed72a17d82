// Package retry implements a configurable backoff executor for a single
// fallible operation: exponential delay capped at a maximum, randomized
// jitter, classification of errors into retryable and non-retryable sets,
// and cooperative cancellation. Every attempt is recorded in the returned
// Result for diagnostics.
package retry
