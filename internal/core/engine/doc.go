// Package engine executes memkv commands against a memory.Store.
//
// Every command is described by an entry in a fixed table keyed by
// domain.CommandKind; New refuses to build an engine whose table misses a
// kind. A command that names a key runs entirely under that key's shard
// lock: the key is resolved (expired entries purged), the handler runs,
// and a successful mutating command is handed to the Appender before the
// lock is released. Replay executes the same path without appending.
//
// Failures are returned as *domain.CommandError and turned into error
// replies at the edge of Execute, one text per kind.
package engine
