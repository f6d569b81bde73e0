package group_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/addressing"
	"cipherlog/internal/protocol/envelope"
	"cipherlog/internal/protocol/group"
)

var member = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	require := require.New(t)

	key, err := group.NewKey()
	require.NoError(err)

	ct, err := group.Encrypt([]byte("hello group"), key)
	require.NoError(err)
	require.Len(ct.IV, crypto.NonceSize)

	content, err := group.Marshal(ct)
	require.NoError(err)
	parsed, err := group.Parse(content)
	require.NoError(err)

	pt, err := group.Decrypt(parsed, key)
	require.NoError(err)
	require.Equal("hello group", string(pt))
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	require := require.New(t)

	k1, err := group.NewKey()
	require.NoError(err)
	k2, err := group.NewKey()
	require.NoError(err)

	ct, err := group.Encrypt([]byte("x"), k1)
	require.NoError(err)
	_, err = group.Decrypt(ct, k2)
	require.ErrorIs(err, domain.ErrDecrypt)
}

func TestWrapUnwrap_RoundTrip(t *testing.T) {
	require := require.New(t)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)
	key, err := group.NewKey()
	require.NoError(err)
	gid := addressing.GroupID(member, 1000)

	share, err := group.WrapKey(gid, key, member, kp.Public)
	require.NoError(err)
	require.Equal(domain.FormatEphemeral, share.Envelope.Format)

	got, err := group.UnwrapKey(share, kp)
	require.NoError(err)
	require.Equal(key, got)
}

func TestUnwrap_RejectsLegacyShare(t *testing.T) {
	require := require.New(t)

	a, err := crypto.GenerateKeyPair()
	require.NoError(err)
	b, err := crypto.GenerateKeyPair()
	require.NoError(err)
	key, err := group.NewKey()
	require.NoError(err)

	env, err := envelope.SealLegacy(key.Slice(), a.Private, b.Public)
	require.NoError(err)

	_, err = group.UnwrapKey(domain.GroupKeyShare{Member: member, Envelope: env}, b)
	require.ErrorIs(err, group.ErrLegacyShare)
}

func TestUnwrap_WrongMemberFails(t *testing.T) {
	require := require.New(t)

	a, err := crypto.GenerateKeyPair()
	require.NoError(err)
	b, err := crypto.GenerateKeyPair()
	require.NoError(err)
	key, err := group.NewKey()
	require.NoError(err)

	share, err := group.WrapKey(domain.GroupID{}, key, member, a.Public)
	require.NoError(err)
	_, err = group.UnwrapKey(share, b)
	require.ErrorIs(err, domain.ErrDecrypt)
}
