package types

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the byte length of an account address.
const AddressLength = 20

// ErrInvalidAddress is returned when an address is not 0x-prefixed 20-byte hex.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a publisher/account address in normalized (lower-case, 0x-prefixed) form.
type Address string

// ParseAddress validates s and returns it in normalized form.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*AddressLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(s), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes converts a wire address back to its string form.
func AddressFromBytes(b [AddressLength]byte) Address {
	return Address("0x" + hex.EncodeToString(b[:]))
}

// String returns the string form of the address.
func (a Address) String() string { return string(a) }

// Normalize lower-cases the address without validating it.
func (a Address) Normalize() Address { return Address(strings.ToLower(strings.TrimSpace(string(a)))) }

// Bytes returns the 20-byte wire form. Invalid addresses yield zero bytes.
func (a Address) Bytes() [AddressLength]byte {
	var out [AddressLength]byte
	s := string(a.Normalize())
	if len(s) != 2+2*AddressLength {
		return out
	}
	_, _ = hex.Decode(out[:], []byte(s[2:]))
	return out
}

// Hash32 is a 32-byte content-derived identifier.
type Hash32 [32]byte

// Hex returns the 0x-prefixed hex form.
func (h Hash32) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// IsZero reports whether h is all zeros.
func (h Hash32) IsZero() bool { return h == Hash32{} }

// ParseHash32 parses a 0x-prefixed (or bare) 64-char hex string.
func ParseHash32(s string) (Hash32, error) {
	var out Hash32
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if len(s) != 64 {
		return out, fmt.Errorf("want 64 hex chars, got %d", len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, err
	}
	return out, nil
}

// ConversationID identifies a two-party conversation.
type ConversationID Hash32

// String returns the hex form of the conversation identifier.
func (id ConversationID) String() string { return Hash32(id).Hex() }

// GroupID identifies a group conversation.
type GroupID Hash32

// String returns the hex form of the group identifier.
func (id GroupID) String() string { return Hash32(id).Hex() }

// ParseGroupID parses the hex form of a group identifier.
func ParseGroupID(s string) (GroupID, error) {
	h, err := ParseHash32(s)
	return GroupID(h), err
}

// RecordID identifies one record inside a publisher slot.
type RecordID Hash32

// String returns the hex form of the record identifier.
func (id RecordID) String() string { return Hash32(id).Hex() }

// ParseRecordID parses the hex form of a record identifier.
func ParseRecordID(s string) (RecordID, error) {
	h, err := ParseHash32(s)
	return RecordID(h), err
}

// SchemaID identifies a record schema on the log.
type SchemaID Hash32

// String returns the hex form of the schema identifier.
func (id SchemaID) String() string { return Hash32(id).Hex() }

// ParseSchemaID parses the hex form of a schema identifier.
func ParseSchemaID(s string) (SchemaID, error) {
	h, err := ParseHash32(s)
	return SchemaID(h), err
}

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
