// Package handler provides the admin HTTP handlers for memkv.
//
//   - health.go: liveness and readiness checks
//   - admin.go: server status and snapshot trigger
//
// Every JSON body uses the Response envelope. /metrics is served in the
// Prometheus text format instead.
package handler
