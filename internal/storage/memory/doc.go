// Package memory provides the in-memory keyspace for memkv.
//
// A Store maps keys to typed entries (see domain.Entry) and keeps an
// absolute expiration deadline, in epoch milliseconds, for keys that were
// given a TTL. Expiration is lazy: a key whose deadline has passed is
// removed the next time a command names it.
//
// Thread Safety:
//
// Keys are spread over the shards of a cmap.Map. Do holds the key's shard
// lock while the callback runs, so a command and anything it does on the
// side (appending to the log) is atomic with respect to other writers of
// that key. Export locks every shard for a point-in-time copy.
package memory
