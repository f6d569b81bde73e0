package store

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"cipherlog/internal/crypto"
	"cipherlog/internal/util/memzero"
)

const vaultFormatVersion = 1

var vaultCheck = []byte("cipherlog key store")

// ErrLocked is returned when a disk key store is opened without a passphrase.
var ErrLocked = errors.New("key store passphrase required")

// vaultHeader records how the store key is derived from the passphrase.
// Check is a known value sealed under that key, so a wrong passphrase fails
// at open instead of on the first read.
type vaultHeader struct {
	V     int    `json:"v" cbor:"1,keyasint"`
	Salt  []byte `json:"salt" cbor:"2,keyasint"`
	N     int    `json:"scrypt_N" cbor:"3,keyasint"`
	R     int    `json:"scrypt_r" cbor:"4,keyasint"`
	P     int    `json:"scrypt_p" cbor:"5,keyasint"`
	Check []byte `json:"check" cbor:"6,keyasint"`
}

// vault seals key store entries at rest. The scrypt key is derived once per
// open; each entry is sealed with its own nonce and bound to its entry name.
type vault struct {
	key []byte
}

func newVault(passphrase string, params scryptParams) (*vault, vaultHeader, error) {
	if passphrase == "" {
		return nil, vaultHeader{}, ErrLocked
	}
	h := vaultHeader{V: vaultFormatVersion, Salt: make([]byte, 16), N: params.N, R: params.R, P: params.P}
	if _, err := rand.Read(h.Salt); err != nil {
		return nil, vaultHeader{}, err
	}
	v, err := deriveVault(passphrase, h)
	if err != nil {
		return nil, vaultHeader{}, err
	}
	if h.Check, err = v.seal("check", vaultCheck); err != nil {
		return nil, vaultHeader{}, err
	}
	return v, h, nil
}

func unlockVault(passphrase string, h vaultHeader) (*vault, error) {
	if passphrase == "" {
		return nil, ErrLocked
	}
	if h.V > vaultFormatVersion {
		return nil, fmt.Errorf("unsupported key store version %d", h.V)
	}
	v, err := deriveVault(passphrase, h)
	if err != nil {
		return nil, err
	}
	check, err := v.open("check", h.Check)
	if err != nil || subtle.ConstantTimeCompare(check, vaultCheck) != 1 {
		v.close()
		return nil, ErrWrongPassphrase
	}
	return v, nil
}

func deriveVault(passphrase string, h vaultHeader) (*vault, error) {
	key, err := scrypt.Key([]byte(passphrase), h.Salt, h.N, h.R, h.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return &vault{key: key}, nil
}

// seal returns nonce||ciphertext of raw, authenticated with entry.
func (v *vault) seal(entry string, raw []byte) ([]byte, error) {
	nonce, sealed, err := crypto.SealCombined(v.key, raw, []byte(entry))
	if err != nil {
		return nil, err
	}
	return append(nonce, sealed...), nil
}

func (v *vault) open(entry string, blob []byte) ([]byte, error) {
	if len(blob) < crypto.NonceSize {
		return nil, fmt.Errorf("%w: sealed entry %s too short", ErrWrongPassphrase, entry)
	}
	pt, err := crypto.OpenCombined(v.key, blob[:crypto.NonceSize], blob[crypto.NonceSize:], []byte(entry))
	if err != nil {
		return nil, fmt.Errorf("%w: entry %s", ErrWrongPassphrase, entry)
	}
	return pt, nil
}

func (v *vault) close() { memzero.Zero(v.key) }

func keyPairEntry(user string) string   { return "keypair:" + user }
func groupKeyEntry(group string) string { return "groupkey:" + group }
