// Package guard holds the per-client protections shared by the RESP and
// admin listeners: a per-IP token bucket limiter and an IP allow list.
package guard
