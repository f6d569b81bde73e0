// Package addressing derives the deterministic identifiers used on the log:
// conversation ids, group ids and record ids.
package addressing

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"

	"github.com/google/uuid"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
)

// Purpose tags separate record ids of different record kinds published by
// the same sender at the same timestamp.
type Purpose string

const (
	PurposeDirect   Purpose = "dm"
	PurposeSelfCopy Purpose = "dm-self"
	PurposeGroup    Purpose = "group"
	PurposeGroupKey Purpose = "group-key"
)

const separator = "-"

// ConversationID returns the id shared by both participants of a direct
// conversation. ConversationID(a, b) == ConversationID(b, a).
func ConversationID(a, b domain.Address) domain.ConversationID {
	x, y := a.Normalize().String(), b.Normalize().String()
	if y < x {
		x, y = y, x
	}
	return domain.ConversationID(crypto.Keccak256([]byte(x + separator + y)))
}

// GroupID returns the id of a group created by creator at timestamp (ms).
func GroupID(creator domain.Address, timestamp uint64) domain.GroupID {
	s := "group" + separator + creator.Normalize().String() + separator + strconv.FormatUint(timestamp, 10)
	return domain.GroupID(crypto.Keccak256([]byte(s)))
}

// Nonce is the random component of a record id.
type Nonce [16]byte

// NewNonce returns a random nonce drawn from a v4 UUID.
func NewNonce() (Nonce, error) {
	u, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		return Nonce{}, err
	}
	return Nonce(u), nil
}

// RecordID derives the id of a record published by sender at timestamp (ms).
//
// The nonce keeps two records from the same sender in the same millisecond
// from colliding.
func RecordID(sender domain.Address, timestamp uint64, purpose Purpose, nonce Nonce) domain.RecordID {
	s := sender.Normalize().String() + separator +
		strconv.FormatUint(timestamp, 10) + separator +
		string(purpose) + separator +
		hex.EncodeToString(nonce[:])
	return domain.RecordID(crypto.Keccak256([]byte(s)))
}

// SelfCopyID returns the id of the sender's self-copy of the direct message
// primary. Records written in the same millisecond still pair exactly.
func SelfCopyID(primary domain.RecordID) domain.RecordID {
	return domain.RecordID(crypto.Keccak256(primary[:], []byte(separator+string(PurposeSelfCopy))))
}

// NewRecordID is RecordID with a fresh nonce.
func NewRecordID(sender domain.Address, timestamp uint64, purpose Purpose) (domain.RecordID, error) {
	nonce, err := NewNonce()
	if err != nil {
		return domain.RecordID{}, err
	}
	return RecordID(sender, timestamp, purpose, nonce), nil
}
