// Package deadletter holds work items that exhausted their retry budget,
// awaiting manual replay. Entries are never silently discarded: a successful
// replay resolves them, and repeated failed replays beyond the configured
// cap mark them permanently exhausted.
package deadletter
