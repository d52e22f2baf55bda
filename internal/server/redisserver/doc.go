// Package redisserver serves the engine over TCP using the Redis
// serialization protocol (RESP2).
//
// Each connection runs in its own goroutine and processes its commands in
// order. Requests may be multibulk arrays or inline lines. Replies to
// pipelined requests are buffered and flushed once the read buffer drains.
//
// A malformed frame gets "-ERR protocol error: ..." and a frame over the
// protocol limits gets "-ERR protocol limit exceeded"; both close the
// connection. Commands over the per-IP rate limit get "-ERR rate limit
// exceeded" and the connection stays open.
package redisserver
