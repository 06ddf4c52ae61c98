// Package streams implements the Stream Registry: fan-out of a single
// Docker logs/stats/events stream to many subscribers, keyed by
// (kind, host, resource, parameter fingerprint) so two callers asking for
// the same container's logs share one upstream connection.
//
// The subscribe/unsubscribe/non-blocking-broadcast shape is the same one
// pkg/events used for cluster-wide notifications; this package adds the
// per-stream ring buffer, slow-consumer drop, and linger-before-teardown
// behavior a shared, resumable stream needs that a plain event bus does
// not.
package streams
