// Package envelope implements the direct-message encryption envelope.
//
// # Formats
//
// Two envelope layouts exist on the log:
//   - Ephemeral: a fresh X25519 key pair per message. The ephemeral public key
//     travels in the envelope, so the recipient needs only their own private key.
//   - Legacy: no ephemeral key. The symmetric key comes from the sender's and
//     recipient's long-term keys, so opening one needs the counterparty's
//     public key from the registry.
//
// The format is fixed when the envelope is parsed (domain.Envelope.Format)
// and Open dispatches on it with an exhaustive switch.
//
// # Keys
//
// Ephemeral: HKDF-SHA256(DH(eph, recipient), salt = ephPub||recipientPub,
// info = "cipherlog/dm/v2"). Legacy: HKDF-SHA256(DH(own, counterparty),
// info = "cipherlog/dm/v1"). Both feed ChaCha20-Poly1305 with a 12-byte IV
// and a detached 16-byte tag.
//
// # Errors
//
// Every authentication or parse failure wraps domain.ErrDecrypt. A legacy
// envelope whose counterparty is unknown to the registry yields
// domain.ErrRegistryMiss, which also matches domain.ErrDecrypt.
package envelope
