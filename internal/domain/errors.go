package domain

import (
	"errors"
	"fmt"

	types "cipherlog/internal/domain/types"
)

var (
	// ErrNoKeyPair is matched by key-absent failures for a user key pair.
	ErrNoKeyPair = errors.New("no local key pair")
	// ErrNoGroupKey is matched by key-absent failures for a group key.
	ErrNoGroupKey = errors.New("no local group key")
	// ErrNotRegistered means the registry has no public key for a recipient.
	ErrNotRegistered = errors.New("address has no registered public key")
	// ErrRegistryMiss means a legacy envelope could not be opened because the
	// sender's public key is unknown.
	ErrRegistryMiss = errors.New("sender public key not found in registry")
	// ErrDecrypt covers malformed or undecryptable envelopes.
	ErrDecrypt = errors.New("decrypt failed")
	// ErrPublish wraps log write failures.
	ErrPublish = errors.New("publish failed")
	// ErrPartialClear is returned when some records could not be soft-deleted.
	ErrPartialClear = errors.New("conversation only partially cleared")
	// ErrRecordNotFound is returned when a record is not in the caller's slot.
	ErrRecordNotFound = errors.New("record not found")
	// ErrInvalidAddress is returned for malformed addresses.
	ErrInvalidAddress = types.ErrInvalidAddress
	// ErrMalformedEnvelope is returned when envelope content cannot be parsed.
	ErrMalformedEnvelope = types.ErrMalformedEnvelope
)

// KeyKind names the kind of key a KeyAbsentError refers to.
type KeyKind string

const (
	KeyKindPair  KeyKind = "key pair"
	KeyKindGroup KeyKind = "group key"
)

// KeyAbsentError reports a missing local key before any network call is made.
type KeyAbsentError struct {
	Kind    KeyKind
	Subject string
}

func (e *KeyAbsentError) Error() string {
	return fmt.Sprintf("no local %s for %s", e.Kind, e.Subject)
}

// Is lets errors.Is match ErrNoKeyPair / ErrNoGroupKey.
func (e *KeyAbsentError) Is(target error) bool {
	switch target {
	case ErrNoKeyPair:
		return e.Kind == KeyKindPair
	case ErrNoGroupKey:
		return e.Kind == KeyKindGroup
	}
	return false
}

// NoKeyPair builds the key-absent error for user.
func NoKeyPair(user types.Address) error {
	return &KeyAbsentError{Kind: KeyKindPair, Subject: user.String()}
}

// NoGroupKey builds the key-absent error for group.
func NoGroupKey(group types.GroupID) error {
	return &KeyAbsentError{Kind: KeyKindGroup, Subject: group.String()}
}
