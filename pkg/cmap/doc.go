// Package cmap provides a string-keyed concurrent map split into shards.
//
// Keys are assigned to shards with murmur3, so the same key always lands
// on the same shard across processes. Each shard is guarded by its own
// mutex:
//
//   - Get, Set, Delete and Count lock one shard per call
//   - Do holds a key's shard lock for the duration of a callback
//   - Freeze locks every shard in index order for a consistent view
//
// Usage:
//
//	m := cmap.New[*record]()
//	m.Do("key", func(items map[string]*record) {
//		items["key"] = &record{}
//	})
package cmap
