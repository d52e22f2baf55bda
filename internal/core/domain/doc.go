// Package domain defines the core domain models for memkv.
//
// Domain models are pure values without any IO dependencies. This
// package contains:
//
//   - Entry: the typed value (string or list) stored under a key
//   - CommandKind: the closed set of commands the engine understands
//   - CommandError: a command failure tagged with its ErrorKind
//
// Entry carries its own JSON form, which is the snapshot encoding:
// {"type":"string","value":"..."} or {"type":"list","value":[...]}.
package domain
