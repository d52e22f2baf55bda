// Package connection holds memkv-cli's connections: the RESP connection
// commands are sent on, and the HTTP client for the admin endpoints.
package connection
