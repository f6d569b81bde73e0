// Package group implements group message encryption and group key wrapping.
//
// Group messages use ChaCha20-Poly1305 directly under the 32-byte group key,
// with the tag appended to the ciphertext. Group keys are distributed by
// sealing the raw key bytes in an ephemeral direct-message envelope addressed
// to each member.
package group

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/envelope"
	"cipherlog/internal/util/memzero"
)

// ErrLegacyShare is returned when a key share is not in the ephemeral format.
var ErrLegacyShare = errors.New("group key share must use the ephemeral envelope format")

// NewKey returns a fresh random group key.
func NewKey() (domain.GroupKey, error) {
	var k domain.GroupKey
	if _, err := rand.Read(k[:]); err != nil {
		return domain.GroupKey{}, err
	}
	return k, nil
}

// Encrypt seals plaintext under key.
func Encrypt(plaintext []byte, key domain.GroupKey) (domain.GroupCiphertext, error) {
	iv, sealed, err := crypto.SealCombined(key.Slice(), plaintext, nil)
	if err != nil {
		return domain.GroupCiphertext{}, err
	}
	return domain.GroupCiphertext{Ciphertext: sealed, IV: iv}, nil
}

// Decrypt reverses Encrypt. Failures wrap domain.ErrDecrypt.
func Decrypt(ct domain.GroupCiphertext, key domain.GroupKey) ([]byte, error) {
	pt, err := crypto.OpenCombined(key.Slice(), ct.IV, ct.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecrypt, err)
	}
	return pt, nil
}

// Marshal serializes ct into record content.
func Marshal(ct domain.GroupCiphertext) (string, error) {
	b, err := json.Marshal(ct)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse reads record content back into a group ciphertext.
func Parse(content string) (domain.GroupCiphertext, error) {
	var ct domain.GroupCiphertext
	if err := json.Unmarshal([]byte(content), &ct); err != nil {
		return domain.GroupCiphertext{}, fmt.Errorf("%w: %w", domain.ErrDecrypt, err)
	}
	return ct, nil
}

// WrapKey seals key for a member's public key.
func WrapKey(group domain.GroupID, key domain.GroupKey, member domain.Address, memberPub domain.X25519Public) (domain.GroupKeyShare, error) {
	env, err := envelope.Seal(key.Slice(), memberPub)
	if err != nil {
		return domain.GroupKeyShare{}, err
	}
	return domain.GroupKeyShare{GroupID: group, Member: member, Envelope: env}, nil
}

// UnwrapKey recovers the group key from share with the member's key pair.
func UnwrapKey(share domain.GroupKeyShare, own domain.KeyPair) (domain.GroupKey, error) {
	if share.Envelope.Format != domain.FormatEphemeral {
		return domain.GroupKey{}, fmt.Errorf("%w: %w", domain.ErrDecrypt, ErrLegacyShare)
	}
	raw, err := envelope.Open(share.Envelope, own, nil)
	if err != nil {
		return domain.GroupKey{}, err
	}
	defer memzero.Zero(raw)

	var key domain.GroupKey
	if len(raw) != len(key) {
		return domain.GroupKey{}, fmt.Errorf("%w: group key is %d bytes, want %d", domain.ErrDecrypt, len(raw), len(key))
	}
	copy(key[:], raw)
	return key, nil
}
