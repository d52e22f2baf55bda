// Package storage ties the in-memory keyspace to durable storage.
//
// The Manager owns two persistence mechanisms:
//
//   - Snapshot: a full copy of the keyspace written by Save and read by
//     Load, through a file or badger backend (package snapshot).
//   - Append-only log: every successful mutating command, appended while
//     the key's shard lock is held (package aof).
//
// Each snapshot records the log offset it already reflects. Recovery
// loads the snapshot, then replays the log from that offset, so no
// command is applied twice.
package storage
