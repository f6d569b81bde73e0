package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"cipherlog/internal/domain"
)

const bundleVersion = 1

// keyBundle is the plaintext content of an exported key backup.
type keyBundle struct {
	Version   int                        `cbor:"1,keyasint"`
	KeyPairs  map[string]domain.KeyPair  `cbor:"2,keyasint"`
	GroupKeys map[string]domain.GroupKey `cbor:"3,keyasint"`
}

func newKeyBundle() keyBundle {
	return keyBundle{
		Version:   bundleVersion,
		KeyPairs:  make(map[string]domain.KeyPair),
		GroupKeys: make(map[string]domain.GroupKey),
	}
}

// exportBundle encodes b and seals it under passphrase.
func exportBundle(passphrase string, b keyBundle) ([]byte, error) {
	b.Version = bundleVersion
	raw, err := cbor.Marshal(b)
	if err != nil {
		return nil, err
	}
	return sealWithPassphrase(passphrase, raw, defaultScrypt)
}

// importBundle opens and decodes a bundle produced by exportBundle. Entries
// with unparsable keys are rejected so a bad backup never half-applies.
func importBundle(passphrase string, data []byte) (keyBundle, error) {
	raw, err := openWithPassphrase(passphrase, data)
	if err != nil {
		return keyBundle{}, err
	}
	b := newKeyBundle()
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return keyBundle{}, fmt.Errorf("decode backup: %w", err)
	}
	if b.Version > bundleVersion {
		return keyBundle{}, fmt.Errorf("unsupported backup version %d", b.Version)
	}
	for user := range b.KeyPairs {
		if _, err := domain.ParseAddress(user); err != nil {
			return keyBundle{}, fmt.Errorf("backup key pair: %w", err)
		}
	}
	for group := range b.GroupKeys {
		if _, err := domain.ParseGroupID(group); err != nil {
			return keyBundle{}, fmt.Errorf("backup group key %q: %w", group, err)
		}
	}
	if b.KeyPairs == nil {
		b.KeyPairs = make(map[string]domain.KeyPair)
	}
	if b.GroupKeys == nil {
		b.GroupKeys = make(map[string]domain.GroupKey)
	}
	return b, nil
}

func userEntry(user domain.Address) string { return user.Normalize().String() }

func groupEntry(group domain.GroupID) string { return group.String() }
