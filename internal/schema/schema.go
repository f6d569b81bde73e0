// Package schema encodes log records in their fixed positional layouts.
//
// Each record is a CBOR array whose elements follow the schema's field order.
// Decoding is strict: a row with the wrong number of fields, a field of the
// wrong type or a bytes32/address field of the wrong length is rejected with
// ErrSchemaMismatch rather than partially read.
package schema

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
)

// ErrSchemaMismatch is returned when record data does not match its schema.
var ErrSchemaMismatch = errors.New("record does not match schema")

// Signatures of the record layouts. The schema id is the keccak-256 of the
// signature string.
const (
	DirectMessageSignature = "uint64 timestamp, bytes32 conversationId, string content, address sender, address recipient, uint8 messageType, string mediaUrl, bytes32 replyToMessageId, bool isRead, bool isDeleted"
	GroupMessageSignature  = "uint64 timestamp, bytes32 groupId, string content, address sender, uint8 messageType, string mediaUrl, bytes32 replyToMessageId, bool isDeleted"
	GroupKeyShareSignature = "uint64 timestamp, bytes32 groupId, string content, address sender, address member, bool isDeleted"
)

const (
	directMessageFields = 10
	groupMessageFields  = 8
	groupKeyShareFields = 6
)

var (
	DirectMessageID = ID(DirectMessageSignature)
	GroupMessageID  = ID(GroupMessageSignature)
	GroupKeyShareID = ID(GroupKeyShareSignature)
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// ID returns the schema id for a signature string.
func ID(signature string) domain.SchemaID {
	return domain.SchemaID(crypto.Keccak256([]byte(signature)))
}

// Name returns a short name for a known schema id, or its hex form.
func Name(id domain.SchemaID) string {
	switch id {
	case DirectMessageID:
		return "direct-message"
	case GroupMessageID:
		return "group-message"
	case GroupKeyShareID:
		return "group-key-share"
	default:
		return id.String()
	}
}

type directMessageWire struct {
	_              struct{} `cbor:",toarray"`
	Timestamp      uint64
	ConversationID []byte
	Content        string
	Sender         []byte
	Recipient      []byte
	MessageType    uint8
	MediaURL       string
	ReplyTo        []byte
	IsRead         bool
	IsDeleted      bool
}

type groupMessageWire struct {
	_           struct{} `cbor:",toarray"`
	Timestamp   uint64
	GroupID     []byte
	Content     string
	Sender      []byte
	MessageType uint8
	MediaURL    string
	ReplyTo     []byte
	IsDeleted   bool
}

type groupKeyShareWire struct {
	_         struct{} `cbor:",toarray"`
	Timestamp uint64
	GroupID   []byte
	Content   string
	Sender    []byte
	Member    []byte
	IsDeleted bool
}

// EncodeDirectMessage encodes m in the direct message layout.
func EncodeDirectMessage(m domain.DirectMessageRecord) ([]byte, error) {
	return encMode.Marshal(directMessageWire{
		Timestamp:      m.Timestamp,
		ConversationID: m.ConversationID[:],
		Content:        m.Content,
		Sender:         addressBytes(m.Sender),
		Recipient:      addressBytes(m.Recipient),
		MessageType:    uint8(m.MessageType),
		MediaURL:       m.MediaURL,
		ReplyTo:        m.ReplyTo[:],
		IsRead:         m.IsRead,
		IsDeleted:      m.IsDeleted,
	})
}

// DecodeDirectMessage decodes data in the direct message layout.
func DecodeDirectMessage(data []byte) (domain.DirectMessageRecord, error) {
	var w directMessageWire
	if err := decodeStrict(data, directMessageFields, &w); err != nil {
		return domain.DirectMessageRecord{}, err
	}
	var f fixed
	m := domain.DirectMessageRecord{
		Timestamp:      w.Timestamp,
		ConversationID: f.bytes32("conversationId", w.ConversationID),
		Content:        w.Content,
		Sender:         f.address("sender", w.Sender),
		Recipient:      f.address("recipient", w.Recipient),
		MessageType:    domain.MessageType(w.MessageType),
		MediaURL:       w.MediaURL,
		ReplyTo:        f.bytes32("replyToMessageId", w.ReplyTo),
		IsRead:         w.IsRead,
		IsDeleted:      w.IsDeleted,
	}
	if f.err != nil {
		return domain.DirectMessageRecord{}, f.err
	}
	return m, nil
}

// EncodeGroupMessage encodes m in the group message layout.
func EncodeGroupMessage(m domain.GroupMessageRecord) ([]byte, error) {
	return encMode.Marshal(groupMessageWire{
		Timestamp:   m.Timestamp,
		GroupID:     m.GroupID[:],
		Content:     m.Content,
		Sender:      addressBytes(m.Sender),
		MessageType: uint8(m.MessageType),
		MediaURL:    m.MediaURL,
		ReplyTo:     m.ReplyTo[:],
		IsDeleted:   m.IsDeleted,
	})
}

// DecodeGroupMessage decodes data in the group message layout.
func DecodeGroupMessage(data []byte) (domain.GroupMessageRecord, error) {
	var w groupMessageWire
	if err := decodeStrict(data, groupMessageFields, &w); err != nil {
		return domain.GroupMessageRecord{}, err
	}
	var f fixed
	m := domain.GroupMessageRecord{
		Timestamp:   w.Timestamp,
		GroupID:     f.bytes32("groupId", w.GroupID),
		Content:     w.Content,
		Sender:      f.address("sender", w.Sender),
		MessageType: domain.MessageType(w.MessageType),
		MediaURL:    w.MediaURL,
		ReplyTo:     f.bytes32("replyToMessageId", w.ReplyTo),
		IsDeleted:   w.IsDeleted,
	}
	if f.err != nil {
		return domain.GroupMessageRecord{}, f.err
	}
	return m, nil
}

// EncodeGroupKeyShare encodes m in the group key share layout.
func EncodeGroupKeyShare(m domain.GroupKeyShareRecord) ([]byte, error) {
	return encMode.Marshal(groupKeyShareWire{
		Timestamp: m.Timestamp,
		GroupID:   m.GroupID[:],
		Content:   m.Content,
		Sender:    addressBytes(m.Sender),
		Member:    addressBytes(m.Member),
		IsDeleted: m.IsDeleted,
	})
}

// DecodeGroupKeyShare decodes data in the group key share layout.
func DecodeGroupKeyShare(data []byte) (domain.GroupKeyShareRecord, error) {
	var w groupKeyShareWire
	if err := decodeStrict(data, groupKeyShareFields, &w); err != nil {
		return domain.GroupKeyShareRecord{}, err
	}
	var f fixed
	m := domain.GroupKeyShareRecord{
		Timestamp: w.Timestamp,
		GroupID:   f.bytes32("groupId", w.GroupID),
		Content:   w.Content,
		Sender:    f.address("sender", w.Sender),
		Member:    f.address("member", w.Member),
		IsDeleted: w.IsDeleted,
	}
	if f.err != nil {
		return domain.GroupKeyShareRecord{}, f.err
	}
	return m, nil
}

func decodeStrict(data []byte, fields int, v any) error {
	var raw []cbor.RawMessage
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if len(raw) != fields {
		return fmt.Errorf("%w: got %d fields, want %d", ErrSchemaMismatch, len(raw), fields)
	}
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

// fixed converts byte string fields to their fixed-size forms, keeping the
// first length error.
type fixed struct{ err error }

func (f *fixed) bytes32(name string, b []byte) (out [32]byte) {
	if len(b) != len(out) {
		f.fail(name, len(b), len(out))
		return out
	}
	copy(out[:], b)
	return out
}

func (f *fixed) address(name string, b []byte) domain.Address {
	var a [domain.AddressLength]byte
	if len(b) != len(a) {
		f.fail(name, len(b), len(a))
		return ""
	}
	copy(a[:], b)
	return domain.AddressFromBytes(a)
}

func (f *fixed) fail(name string, got, want int) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: %s is %d bytes, want %d", ErrSchemaMismatch, name, got, want)
	}
}

func addressBytes(a domain.Address) []byte {
	b := a.Bytes()
	return b[:]
}
