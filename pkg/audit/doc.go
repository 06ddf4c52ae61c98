// Package audit implements the Audit Recorder: a single Record method
// backed by a bounded channel and a drain goroutine, so a burst of activity
// never blocks the operation it is auditing. A full queue falls back to a
// synchronous store write rather than dropping the event, since audit
// writes must never silently vanish; each such fallback is counted by a
// metric. Store write errors are logged, never returned to the caller.
//
// Grounded on the buffered-channel-plus-drain-goroutine shape used
// throughout warren's worker pool, combined with pkg/storage for
// persistence.
package audit
