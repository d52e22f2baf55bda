// Package metric provides Prometheus metrics for memkv.
//
//   - prometheus.go: the metric Registry and the /metrics HTTP handler
//   - collector.go: a collector reading live values from the engine
//
// Metrics are exposed at /metrics on the admin HTTP server.
package metric
