package types

import (
	"encoding/hex"
	"fmt"
)

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// Hex returns the hex form of the key.
func (p X25519Public) Hex() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// ParseX25519Public decodes a hex-encoded public key.
func ParseX25519Public(s string) (X25519Public, error) {
	var out X25519Public
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("X25519 public: want %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is a signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// Hex returns the hex form of the key.
func (p Ed25519Public) Hex() string { return hex.EncodeToString(p[:]) }

// IsZero reports whether the key is unset.
func (p Ed25519Public) IsZero() bool { return p == Ed25519Public{} }

// ParseEd25519Public decodes a hex-encoded signing public key.
func ParseEd25519Public(s string) (Ed25519Public, error) {
	var out Ed25519Public
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != len(out) {
		return out, fmt.Errorf("Ed25519 public: want %d bytes, got %d", len(out), len(b))
	}
	copy(out[:], b)
	return out, nil
}

// Ed25519Private is a signing private key in crypto/ed25519 layout
// (seed followed by the public key).
type Ed25519Private [64]byte

// KeyPair is a user's long-term key material: an X25519 pair for
// encryption and an Ed25519 pair that signs writes to a shared log server.
type KeyPair struct {
	Public         X25519Public   `json:"public_key" cbor:"1,keyasint"`
	Private        X25519Private  `json:"private_key" cbor:"2,keyasint"`
	SigningPublic  Ed25519Public  `json:"signing_public_key" cbor:"3,keyasint"`
	SigningPrivate Ed25519Private `json:"signing_private_key" cbor:"4,keyasint"`
}

// CanSign reports whether the pair carries a signing key.
func (k KeyPair) CanSign() bool { return !k.SigningPublic.IsZero() }

// GroupKeySize is the byte length of a group symmetric key.
const GroupKeySize = 32

// GroupKey is the symmetric key shared by all members of a group.
type GroupKey [GroupKeySize]byte

// Slice returns the key as a []byte.
func (k GroupKey) Slice() []byte { return k[:] }
