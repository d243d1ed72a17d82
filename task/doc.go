// Package task defines the work-item data model shared by the engine's
// components: the Item carrying identity, priority, lifecycle state and
// timing, and the Action capability interface wrapping the caller-supplied
// work body.
package task
