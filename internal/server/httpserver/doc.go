// Package httpserver provides the admin HTTP server for memkv.
//
// Endpoints:
//
//   - GET /health, GET /ready: liveness and readiness
//   - GET /metrics: Prometheus metrics
//   - GET /admin/v1/status: version, uptime, key count, persistence state
//   - POST /admin/v1/snapshot: writes a snapshot now
//
// /admin/v1 sits behind an optional IP allowlist and per-IP rate limit.
package httpserver
