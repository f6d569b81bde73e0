package addressing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/addressing"
)

var (
	alice = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
)

func TestConversationID_OrderIndependent(t *testing.T) {
	require.Equal(t, addressing.ConversationID(alice, bob), addressing.ConversationID(bob, alice))
}

func TestConversationID_CaseInsensitive(t *testing.T) {
	upper := domain.Address("0x00000000000000000000000000000000000000A1")
	require.Equal(t, addressing.ConversationID(alice, bob), addressing.ConversationID(upper, bob))
}

func TestConversationID_DistinctPairs(t *testing.T) {
	carol := domain.MustParseAddress("0x00000000000000000000000000000000000000c3")
	require.NotEqual(t, addressing.ConversationID(alice, bob), addressing.ConversationID(alice, carol))
}

func TestGroupID_Deterministic(t *testing.T) {
	require := require.New(t)
	require.Equal(addressing.GroupID(alice, 1000), addressing.GroupID(alice, 1000))
	require.NotEqual(addressing.GroupID(alice, 1000), addressing.GroupID(alice, 1001))
	require.NotEqual(addressing.GroupID(alice, 1000), addressing.GroupID(bob, 1000))
}

func TestRecordID_StableForSameInputs(t *testing.T) {
	var nonce addressing.Nonce
	a := addressing.RecordID(alice, 1000, addressing.PurposeDirect, nonce)
	b := addressing.RecordID(alice, 1000, addressing.PurposeDirect, nonce)
	require.Equal(t, a, b)
}

func TestRecordID_PurposeSeparates(t *testing.T) {
	var nonce addressing.Nonce
	require.NotEqual(t,
		addressing.RecordID(alice, 1000, addressing.PurposeDirect, nonce),
		addressing.RecordID(alice, 1000, addressing.PurposeSelfCopy, nonce))
}

func TestNewRecordID_SameMillisecondDoesNotCollide(t *testing.T) {
	require := require.New(t)
	a, err := addressing.NewRecordID(alice, 1000, addressing.PurposeDirect)
	require.NoError(err)
	b, err := addressing.NewRecordID(alice, 1000, addressing.PurposeDirect)
	require.NoError(err)
	require.NotEqual(a, b)
}

func TestSelfCopyID_DerivedFromPrimary(t *testing.T) {
	require := require.New(t)
	a, err := addressing.NewRecordID(alice, 1000, addressing.PurposeDirect)
	require.NoError(err)
	b, err := addressing.NewRecordID(alice, 1000, addressing.PurposeDirect)
	require.NoError(err)

	require.Equal(addressing.SelfCopyID(a), addressing.SelfCopyID(a))
	require.NotEqual(addressing.SelfCopyID(a), addressing.SelfCopyID(b))
	require.NotEqual(a, addressing.SelfCopyID(a))
}
