package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/auth"
	"cipherlog/internal/store"
)

var (
	alice = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
)

func TestKeyStoreSigner_SignsPublish(t *testing.T) {
	require := require.New(t)

	keys := store.NewMemoryKeyStore()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)
	require.NoError(keys.SaveKeyPair(alice, kp))
	signer := auth.KeyStoreSigner{Keys: keys}

	st := auth.NewStamp(time.UnixMilli(1000))
	require.Equal(uint64(1000), st.Timestamp)
	require.NotEmpty(st.Nonce)

	records := []domain.Record{{ID: domain.RecordID{1}, SchemaID: domain.SchemaID{2}, Data: []byte("x")}}
	msg, err := auth.PublishMessage(alice, st, records)
	require.NoError(err)
	pub, err := signer.SigningKey(alice)
	require.NoError(err)
	require.Equal(kp.SigningPublic, pub)
	sig, err := signer.Sign(alice, msg)
	require.NoError(err)
	require.NoError(auth.Verify(pub, msg, sig))

	// Same signature, different slot or content.
	other, err := auth.PublishMessage(bob, st, records)
	require.NoError(err)
	require.ErrorIs(auth.Verify(pub, other, sig), auth.ErrBadSignature)

	records[0].Data = []byte("y")
	changed, err := auth.PublishMessage(alice, st, records)
	require.NoError(err)
	require.ErrorIs(auth.Verify(pub, changed, sig), auth.ErrBadSignature)
}

func TestRegisterMessage_DiffersFromPublish(t *testing.T) {
	require := require.New(t)
	st := auth.Stamp{Timestamp: 5, Nonce: "n"}

	reg, err := auth.RegisterMessage(alice, st, domain.X25519Public{}, domain.Ed25519Public{})
	require.NoError(err)
	pub, err := auth.PublishMessage(alice, st, nil)
	require.NoError(err)
	require.NotEqual(reg, pub)

	again, err := auth.RegisterMessage(alice, st, domain.X25519Public{}, domain.Ed25519Public{})
	require.NoError(err)
	require.Equal(reg, again)
}

func TestKeyStoreSigner_MissingKeys(t *testing.T) {
	require := require.New(t)
	keys := store.NewMemoryKeyStore()
	signer := auth.KeyStoreSigner{Keys: keys}

	_, err := signer.Sign(alice, []byte("m"))
	require.ErrorIs(err, domain.ErrNoKeyPair)

	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)
	kp.SigningPublic, kp.SigningPrivate = domain.Ed25519Public{}, domain.Ed25519Private{}
	require.NoError(keys.SaveKeyPair(alice, kp))
	_, err = signer.Sign(alice, []byte("m"))
	require.ErrorIs(err, auth.ErrCannotSign)
	_, err = signer.SigningKey(alice)
	require.ErrorIs(err, auth.ErrCannotSign)
}
