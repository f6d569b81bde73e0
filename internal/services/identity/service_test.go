package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/crypto"
	"cipherlog/internal/datalog"
	"cipherlog/internal/domain"
	"cipherlog/internal/services/identity"
	"cipherlog/internal/store"
)

var alice = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")

func newService() (*identity.Service, *store.MemoryKeyStore, *datalog.Memory) {
	keys := store.NewMemoryKeyStore()
	backend := datalog.NewMemory()
	return identity.New(keys, backend, nil), keys, backend
}

func TestEnsureKeyPair_CreatesOnce(t *testing.T) {
	require := require.New(t)
	svc, _, _ := newService()

	first, created, err := svc.EnsureKeyPair(alice)
	require.NoError(err)
	require.True(created)

	second, created, err := svc.EnsureKeyPair(domain.Address("0x00000000000000000000000000000000000000A1"))
	require.NoError(err)
	require.False(created)
	require.Equal(first, second)

	pub, err := crypto.PublicKey(first.Private)
	require.NoError(err)
	require.Equal(first.Public, pub)
}

func TestEnsureKeyPair_RejectsBadAddress(t *testing.T) {
	svc, _, _ := newService()
	_, _, err := svc.EnsureKeyPair("bob")
	require.ErrorIs(t, err, domain.ErrInvalidAddress)
}

func TestRegister_PublishesPublicKey(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	svc, _, backend := newService()

	require.ErrorIs(svc.Register(ctx, alice), domain.ErrNoKeyPair)

	kp, _, err := svc.EnsureKeyPair(alice)
	require.NoError(err)
	require.NoError(svc.Register(ctx, alice))

	pub, ok, err := backend.Fetch(ctx, alice)
	require.NoError(err)
	require.True(ok)
	require.Equal(kp.Public, pub)
}

func TestFingerprint(t *testing.T) {
	require := require.New(t)
	svc, _, _ := newService()

	_, err := svc.Fingerprint(alice)
	require.ErrorIs(err, domain.ErrNoKeyPair)

	kp, _, err := svc.EnsureKeyPair(alice)
	require.NoError(err)
	fp, err := svc.Fingerprint(alice)
	require.NoError(err)
	require.Equal(crypto.Fingerprint(kp.Public.Slice()), fp.String())
}

func TestReset_NextEnsureMakesNewPair(t *testing.T) {
	require := require.New(t)
	svc, keys, _ := newService()

	old, _, err := svc.EnsureKeyPair(alice)
	require.NoError(err)
	require.NoError(svc.Reset(alice))

	_, ok, err := keys.GetKeyPair(alice)
	require.NoError(err)
	require.False(ok)

	fresh, created, err := svc.EnsureKeyPair(alice)
	require.NoError(err)
	require.True(created)
	require.NotEqual(old, fresh)
}

func TestExport_PassphrasePolicy(t *testing.T) {
	require := require.New(t)
	svc, _, _ := newService()
	_, _, err := svc.EnsureKeyPair(alice)
	require.NoError(err)

	for _, weak := range []string{"short1!A", "alllowercase123!", "NoDigitsHere!!", "NoSymbols12345"} {
		_, err := svc.Export(weak)
		require.ErrorIs(err, identity.ErrWeakPassphrase, weak)
	}
}

func TestExportImport_RestoresKeys(t *testing.T) {
	require := require.New(t)
	const pass = "Correct-Horse-42"

	src, _, _ := newService()
	kp, _, err := src.EnsureKeyPair(alice)
	require.NoError(err)
	bundle, err := src.Export(pass)
	require.NoError(err)

	dst, _, _ := newService()
	require.Error(dst.Import("Wrong-Horse-42!", bundle))
	require.NoError(dst.Import(pass, bundle))

	got, created, err := dst.EnsureKeyPair(alice)
	require.NoError(err)
	require.False(created)
	require.Equal(kp, got)
}
