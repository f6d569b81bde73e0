package types

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// EnvelopeFormat tags which historical ciphertext layout an Envelope uses.
type EnvelopeFormat uint8

const (
	// FormatLegacy envelopes carry no ephemeral key; the key agreement uses
	// the counterparty's long-term public key.
	FormatLegacy EnvelopeFormat = iota + 1
	// FormatEphemeral envelopes embed a per-message ephemeral public key and
	// need only the recipient's private key.
	FormatEphemeral
)

// String returns a short name for the format.
func (f EnvelopeFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatEphemeral:
		return "ephemeral"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ErrMalformedEnvelope is returned when serialized envelope content cannot be parsed.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the ciphertext payload stored as a record's content.
//
// Format is decided once when the envelope is parsed; EphemeralPublicKey is
// only meaningful for FormatEphemeral.
type Envelope struct {
	Format             EnvelopeFormat
	EphemeralPublicKey X25519Public
	Ciphertext         []byte
	IV                 []byte
	AuthTag            []byte
}

type envelopeJSON struct {
	EphemeralPublicKey string `json:"ephemeralPublicKey,omitempty"`
	Ciphertext         string `json:"ciphertext"`
	IV                 string `json:"iv"`
	AuthTag            string `json:"authTag"`
}

// MarshalJSON encodes binary fields as hex; legacy envelopes omit the ephemeral key.
func (e Envelope) MarshalJSON() ([]byte, error) {
	aux := envelopeJSON{
		Ciphertext: hex.EncodeToString(e.Ciphertext),
		IV:         hex.EncodeToString(e.IV),
		AuthTag:    hex.EncodeToString(e.AuthTag),
	}
	switch e.Format {
	case FormatEphemeral:
		aux.EphemeralPublicKey = e.EphemeralPublicKey.Hex()
	case FormatLegacy:
	default:
		return nil, fmt.Errorf("%w: unknown format %d", ErrMalformedEnvelope, e.Format)
	}
	return json.Marshal(aux)
}

// UnmarshalJSON mirrors MarshalJSON and fixes Format from the presence of
// the ephemeral key.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var aux envelopeJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	var (
		out Envelope
		err error
	)
	if out.Ciphertext, err = hex.DecodeString(aux.Ciphertext); err != nil {
		return fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}
	if out.IV, err = hex.DecodeString(aux.IV); err != nil {
		return fmt.Errorf("%w: iv: %v", ErrMalformedEnvelope, err)
	}
	if out.AuthTag, err = hex.DecodeString(aux.AuthTag); err != nil {
		return fmt.Errorf("%w: authTag: %v", ErrMalformedEnvelope, err)
	}
	if aux.EphemeralPublicKey == "" {
		out.Format = FormatLegacy
	} else {
		out.Format = FormatEphemeral
		if out.EphemeralPublicKey, err = ParseX25519Public(aux.EphemeralPublicKey); err != nil {
			return fmt.Errorf("%w: ephemeralPublicKey: %v", ErrMalformedEnvelope, err)
		}
	}
	*e = out
	return nil
}

// GroupCiphertext is the serialized content of a group message record.
// The authentication tag is appended to Ciphertext.
type GroupCiphertext struct {
	Ciphertext []byte
	IV         []byte
}

type groupCiphertextJSON struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
}

// MarshalJSON encodes binary fields as hex.
func (g GroupCiphertext) MarshalJSON() ([]byte, error) {
	return json.Marshal(groupCiphertextJSON{
		Ciphertext: hex.EncodeToString(g.Ciphertext),
		IV:         hex.EncodeToString(g.IV),
	})
}

// UnmarshalJSON mirrors MarshalJSON.
func (g *GroupCiphertext) UnmarshalJSON(data []byte) error {
	var aux groupCiphertextJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	ct, err := hex.DecodeString(aux.Ciphertext)
	if err != nil {
		return fmt.Errorf("%w: ciphertext: %v", ErrMalformedEnvelope, err)
	}
	iv, err := hex.DecodeString(aux.IV)
	if err != nil {
		return fmt.Errorf("%w: iv: %v", ErrMalformedEnvelope, err)
	}
	g.Ciphertext, g.IV = ct, iv
	return nil
}

// MessageType classifies the payload of a message.
type MessageType uint8

const (
	MessageText MessageType = iota
	MessageImage
	MessageAudio
	MessageVideo
	MessageFile
)

// DirectMessageRecord is one direct message as published to the log.
type DirectMessageRecord struct {
	Timestamp      uint64
	ConversationID ConversationID
	Content        string
	Sender         Address
	Recipient      Address
	MessageType    MessageType
	MediaURL       string
	ReplyTo        RecordID
	IsRead         bool
	IsDeleted      bool
}

// GroupMessageRecord is one group message as published to the log.
type GroupMessageRecord struct {
	Timestamp   uint64
	GroupID     GroupID
	Content     string
	Sender      Address
	MessageType MessageType
	MediaURL    string
	ReplyTo     RecordID
	IsDeleted   bool
}

// GroupKeyShareRecord carries a GroupKeyShare envelope addressed to Member.
type GroupKeyShareRecord struct {
	Timestamp uint64
	GroupID   GroupID
	Content   string
	Sender    Address
	Member    Address
	IsDeleted bool
}

// GroupKeyShare is a group key wrapped to one member's public key.
type GroupKeyShare struct {
	GroupID  GroupID
	Member   Address
	Envelope Envelope
}

// UndecryptablePlaceholder replaces the plaintext of a transcript entry that
// could not be decrypted.
const UndecryptablePlaceholder = "[unable to decrypt message]"

// DecryptedMessage is one entry of an assembled transcript.
//
// When Undecryptable is set, Plaintext holds a placeholder and the entry
// keeps its position in the transcript.
type DecryptedMessage struct {
	ID             RecordID       `json:"id"`
	Publisher      Address        `json:"publisher"`
	ConversationID ConversationID `json:"conversation_id"`
	GroupID        GroupID        `json:"group_id"`
	Sender         Address        `json:"sender"`
	Recipient      Address        `json:"recipient,omitempty"`
	Timestamp      uint64         `json:"timestamp"`
	Plaintext      string         `json:"plaintext"`
	MessageType    MessageType    `json:"message_type"`
	MediaURL       string         `json:"media_url,omitempty"`
	ReplyTo        RecordID       `json:"reply_to"`
	IsRead         bool           `json:"is_read"`
	IsDeleted      bool           `json:"is_deleted"`
	Outgoing       bool           `json:"outgoing"`
	Undecryptable  bool           `json:"undecryptable"`
}
