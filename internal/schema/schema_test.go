package schema_test

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/addressing"
	"cipherlog/internal/schema"
)

var (
	alice = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
)

func TestSchemaIDs_Distinct(t *testing.T) {
	require := require.New(t)
	require.NotEqual(schema.DirectMessageID, schema.GroupMessageID)
	require.NotEqual(schema.GroupMessageID, schema.GroupKeyShareID)
	require.Equal("direct-message", schema.Name(schema.DirectMessageID))
}

func TestDirectMessage_RoundTrip(t *testing.T) {
	require := require.New(t)
	in := domain.DirectMessageRecord{
		Timestamp:      1000,
		ConversationID: addressing.ConversationID(alice, bob),
		Content:        `{"ciphertext":"00"}`,
		Sender:         alice,
		Recipient:      bob,
		MessageType:    domain.MessageImage,
		MediaURL:       "ipfs://x",
		ReplyTo:        domain.RecordID{1, 2, 3},
		IsRead:         true,
		IsDeleted:      true,
	}
	data, err := schema.EncodeDirectMessage(in)
	require.NoError(err)

	out, err := schema.DecodeDirectMessage(data)
	require.NoError(err)
	require.Equal(in, out)
}

func TestGroupRecords_RoundTrip(t *testing.T) {
	require := require.New(t)
	gid := addressing.GroupID(alice, 1000)

	msg := domain.GroupMessageRecord{Timestamp: 5, GroupID: gid, Content: "c", Sender: alice}
	data, err := schema.EncodeGroupMessage(msg)
	require.NoError(err)
	gotMsg, err := schema.DecodeGroupMessage(data)
	require.NoError(err)
	require.Equal(msg, gotMsg)

	share := domain.GroupKeyShareRecord{Timestamp: 6, GroupID: gid, Content: "k", Sender: alice, Member: bob}
	data, err = schema.EncodeGroupKeyShare(share)
	require.NoError(err)
	gotShare, err := schema.DecodeGroupKeyShare(data)
	require.NoError(err)
	require.Equal(share, gotShare)
}

func TestDecode_RejectsWrongFieldCount(t *testing.T) {
	require := require.New(t)

	// A group message has fewer fields than a direct message.
	data, err := schema.EncodeGroupMessage(domain.GroupMessageRecord{Timestamp: 1, Sender: alice})
	require.NoError(err)

	_, err = schema.DecodeDirectMessage(data)
	require.ErrorIs(err, schema.ErrSchemaMismatch)
	_, err = schema.DecodeGroupKeyShare(data)
	require.ErrorIs(err, schema.ErrSchemaMismatch)
}

func TestDecode_RejectsWrongFieldType(t *testing.T) {
	id32, addr := make([]byte, 32), make([]byte, 20)
	for name, tc := range map[string]struct {
		row    []any
		decode func([]byte) error
	}{
		"string timestamp": {
			row:    []any{"not a timestamp", 2, 3, 4, 5, 6},
			decode: decodeShare,
		},
		"short conversation id": {
			row:    []any{1, make([]byte, 31), "c", addr, addr, 0, "", id32, false, false},
			decode: decodeDirect,
		},
		"long sender": {
			row:    []any{1, id32, "c", make([]byte, 25), addr, 0, "", id32, false, false},
			decode: decodeDirect,
		},
		"empty recipient": {
			row:    []any{1, id32, "c", addr, []byte{}, 0, "", id32, false, false},
			decode: decodeDirect,
		},
		"short reply id": {
			row:    []any{1, id32, "c", addr, 0, "", make([]byte, 8), false},
			decode: decodeGroupMessage,
		},
		"long group id": {
			row:    []any{1, make([]byte, 33), "k", addr, addr, false},
			decode: decodeShare,
		},
		"short member": {
			row:    []any{1, id32, "k", addr, make([]byte, 19), false},
			decode: decodeShare,
		},
		"text conversation id": {
			row:    []any{1, "0x01", "c", addr, addr, 0, "", id32, false, false},
			decode: decodeDirect,
		},
	} {
		t.Run(name, func(t *testing.T) {
			data, err := cbor.Marshal(tc.row)
			require.NoError(t, err)
			require.ErrorIs(t, tc.decode(data), schema.ErrSchemaMismatch)
		})
	}
}

func TestDecode_AcceptsExactLengths(t *testing.T) {
	id32, addr := make([]byte, 32), make([]byte, 20)
	addr[19] = 0xa1
	data, err := cbor.Marshal([]any{1, id32, "c", addr, addr, 0, "", id32, false, false})
	require.NoError(t, err)

	m, err := schema.DecodeDirectMessage(data)
	require.NoError(t, err)
	require.Equal(t, alice, m.Sender)
}

func decodeDirect(b []byte) error {
	_, err := schema.DecodeDirectMessage(b)
	return err
}

func decodeGroupMessage(b []byte) error {
	_, err := schema.DecodeGroupMessage(b)
	return err
}

func decodeShare(b []byte) error {
	_, err := schema.DecodeGroupKeyShare(b)
	return err
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, {0xff}, []byte("hello")} {
		_, err := schema.DecodeDirectMessage(data)
		require.ErrorIs(t, err, schema.ErrSchemaMismatch)
	}
}
