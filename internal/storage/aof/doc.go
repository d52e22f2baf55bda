// Package aof provides the append-only command log.
//
// Every successful mutating command is written as one multibulk frame,
// the same framing clients use on the wire:
//
//	*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n
//
// The file has no header or trailer, so a log is a valid request stream.
//
// Sync modes:
//
//   - always: write and fsync on every record
//   - everysec: write and fsync once per second (default)
//   - no: write once per second, leave fsync to the OS
//
// Replay reads the file from a byte offset (the offset recorded in the
// last snapshot) and reports where the last complete record ends, so a
// record torn by a crash can be cut off before appending resumes.
package aof
