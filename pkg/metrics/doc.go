// Package metrics defines the Prometheus metrics exposed at GET /metrics:
// gauges for breaker state, pool size and active streams; counters for
// dropped frames, login attempts and routed Docker operations; histograms
// for API and Docker operation latency. All metrics are package-level vars
// registered at init, the pattern this repo has always used so any package
// can update a metric without holding a reference to a collector.
package metrics
