// Package crypto exposes the minimal primitives used by cipherlog.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie-Hellman (GenerateX25519,
//     GenerateKeyPair, DH)
//   - Ed25519 signing keys for authenticated log writes (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - HKDF-SHA256 key derivation (DeriveKey)
//   - ChaCha20-Poly1305 sealing with a detached or appended tag (Seal, Open,
//     SealCombined, OpenCombined)
//   - Keccak-256 content hashing for identifiers (Keccak256)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// Key types come from internal/domain as fixed-size arrays. Callers should
// treat derived keys as sensitive and wipe them with memzero when practical.
package crypto
