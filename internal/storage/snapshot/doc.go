// Package snapshot persists full copies of the keyspace.
//
// A snapshot is a memory.State plus the append-only log offset that the
// state already reflects. Two backends are provided.
//
// The file backend writes one file, replaced atomically through a temp
// file and rename:
//
//	[magic:8 "MEMKSNAP"]
//	[HeaderLen:4][HeaderJSON:HeaderLen]
//	[DataLen:4][Data:DataLen]   (JSON state, or encrypted bytes)
//	[checksum:32 SHA-256 of all bytes above]
//
// The badger backend keeps one record per key in an embedded badger
// directory, grouped under a generation number:
//
//	g/<gen>/e/<key>  entry JSON
//	g/<gen>/x/<key>  deadline, 8 bytes big endian milliseconds
//	m/meta           header JSON, naming the live generation
//
// A save stages the next generation and commits by rewriting m/meta in
// one transaction, so a crash mid-save leaves the previous snapshot
// readable.
//
// Lengths are big endian.
package snapshot
