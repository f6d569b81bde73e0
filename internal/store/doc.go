// Package store provides local persistence for cipherlog's key material.
//
// It contains the concrete KeyStore implementations:
//   - FileKeyStore: a single JSON file of sealed entries, rewritten atomically
//   - BoltKeyStore: a bbolt database with one bucket per key kind
//   - MemoryKeyStore: process memory only
//
// The file and bolt stores are opened with a passphrase. A scrypt-derived key
// is computed once at open and every entry is sealed with ChaCha20-Poly1305,
// bound to its entry name, so nothing on disk holds a raw private key.
//
// All of them are safe for concurrent use and share the backup format: a CBOR
// bundle of every key pair and group key, sealed with ChaCha20-Poly1305 under
// a scrypt-derived key. Import replaces the store content; nothing is merged.
//
// ProfileFileStore remembers which local address the CLI acts as.
package store
