// Package dashboard periodically composes monitor snapshots, bottleneck
// analyses and resource state into reportable views, retaining a short
// rolling history. It runs on its own lifecycle, independent of the
// scheduler.
package dashboard
