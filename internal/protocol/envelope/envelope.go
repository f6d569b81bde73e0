package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/util/memzero"
)

var (
	infoEphemeral = []byte("cipherlog/dm/v2")
	infoLegacy    = []byte("cipherlog/dm/v1")
)

// Seal encrypts plaintext to recipient with a fresh ephemeral key pair.
func Seal(plaintext []byte, recipient domain.X25519Public) (domain.Envelope, error) {
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Envelope{}, err
	}
	defer memzero.Zero(ephPriv[:])

	key, err := ephemeralKey(ephPriv, recipient, ephPub, recipient)
	if err != nil {
		return domain.Envelope{}, err
	}
	defer memzero.Zero(key)

	iv, ct, tag, err := crypto.Seal(key, plaintext, nil)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Format:             domain.FormatEphemeral,
		EphemeralPublicKey: ephPub,
		Ciphertext:         ct,
		IV:                 iv,
		AuthTag:            tag,
	}, nil
}

// SealLegacy produces a legacy envelope from sender to recipient. New
// messages are never written in this format; it exists to read and test
// records published by older clients.
func SealLegacy(plaintext []byte, sender domain.X25519Private, recipient domain.X25519Public) (domain.Envelope, error) {
	key, err := legacyKey(sender, recipient)
	if err != nil {
		return domain.Envelope{}, err
	}
	defer memzero.Zero(key)

	iv, ct, tag, err := crypto.Seal(key, plaintext, nil)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{
		Format:     domain.FormatLegacy,
		Ciphertext: ct,
		IV:         iv,
		AuthTag:    tag,
	}, nil
}

// Open decrypts env with own's private key.
//
// counterparty is only consulted for legacy envelopes; a nil counterparty on
// a legacy envelope fails with domain.ErrRegistryMiss.
func Open(env domain.Envelope, own domain.KeyPair, counterparty *domain.X25519Public) ([]byte, error) {
	var (
		key []byte
		err error
	)
	switch env.Format {
	case domain.FormatEphemeral:
		key, err = ephemeralKey(own.Private, env.EphemeralPublicKey, env.EphemeralPublicKey, own.Public)
	case domain.FormatLegacy:
		if counterparty == nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrDecrypt, domain.ErrRegistryMiss)
		}
		key, err = legacyKey(own.Private, *counterparty)
	default:
		return nil, fmt.Errorf("%w: %w: format %s", domain.ErrDecrypt, domain.ErrMalformedEnvelope, env.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement: %v", domain.ErrDecrypt, err)
	}
	defer memzero.Zero(key)

	pt, err := crypto.Open(key, env.IV, env.Ciphertext, env.AuthTag, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecrypt, err)
	}
	return pt, nil
}

// Marshal serializes env into the string stored as a record's content.
func Marshal(env domain.Envelope) (string, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse reads record content back into an envelope. The returned error wraps
// both domain.ErrDecrypt and domain.ErrMalformedEnvelope.
func Parse(content string) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		if !errors.Is(err, domain.ErrMalformedEnvelope) {
			err = fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
		}
		return domain.Envelope{}, fmt.Errorf("%w: %w", domain.ErrDecrypt, err)
	}
	return env, nil
}

func ephemeralKey(priv domain.X25519Private, peer domain.X25519Public, ephPub, recipientPub domain.X25519Public) ([]byte, error) {
	shared, err := crypto.DH(priv, peer)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(shared[:])

	salt := make([]byte, 0, 64)
	salt = append(salt, ephPub[:]...)
	salt = append(salt, recipientPub[:]...)
	return crypto.DeriveKey(shared[:], salt, infoEphemeral)
}

func legacyKey(own domain.X25519Private, counterparty domain.X25519Public) ([]byte, error) {
	shared, err := crypto.DH(own, counterparty)
	if err != nil {
		return nil, err
	}
	defer memzero.Zero(shared[:])
	return crypto.DeriveKey(shared[:], nil, infoLegacy)
}
