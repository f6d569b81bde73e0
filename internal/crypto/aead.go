package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

// ErrOpen is returned when authenticated decryption fails.
var ErrOpen = errors.New("message authentication failed")

// DeriveKey expands secret into a KeySize symmetric key with HKDF-SHA256.
func DeriveKey(secret, salt, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, info), key); err != nil {
		return nil, err
	}
	return key, nil
}

// Seal encrypts plaintext under key with a fresh random nonce and returns the
// nonce, the ciphertext and the detached authentication tag.
func Seal(key, plaintext, ad []byte) (nonce, ciphertext, tag []byte, err error) {
	nonce, sealed, err := SealCombined(key, plaintext, ad)
	if err != nil {
		return nil, nil, nil, err
	}
	split := len(sealed) - TagSize
	return nonce, sealed[:split], sealed[split:], nil
}

// Open reverses Seal.
func Open(key, nonce, ciphertext, tag, ad []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, ErrOpen
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	return OpenCombined(key, nonce, sealed, ad)
}

// SealCombined encrypts plaintext and returns the nonce and ciphertext||tag.
func SealCombined(key, plaintext, ad []byte) (nonce, sealed []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, plaintext, ad), nil
}

// OpenCombined reverses SealCombined.
func OpenCombined(key, nonce, sealed, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, ErrOpen
	}
	pt, err := aead.Open(nil, nonce, sealed, ad)
	if err != nil {
		return nil, ErrOpen
	}
	return pt, nil
}
