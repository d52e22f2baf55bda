// Package adaptive provides authenticated encryption for snapshot data.
//
// Two AEAD algorithms are supported:
//
//   - AES-256-GCM, preferred when the CPU has AES instructions
//   - ChaCha20-Poly1305 otherwise
//
// Ciphertexts carry their nonce as a prefix:
//
//	[nonce][sealed data + tag]
//
// A Cipher is safe for concurrent use.
package adaptive
