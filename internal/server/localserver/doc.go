// Package localserver provides the control socket of memkv-server.
//
// It listens on a Unix domain socket and accepts one command per line:
//
//	ping      liveness probe
//	status    key count, log offset and last snapshot
//	save      write a snapshot now
//	reload    re-read the configuration file
//	shutdown  stop the server gracefully
//
// Each request gets one JSON line back, {"ok":true,"data":...} or
// {"ok":false,"error":"..."}. Access is controlled by the socket file's
// permissions (0600), so there is no further authentication.
package localserver
