package store_test

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/addressing"
	"cipherlog/internal/store"
)

var alice = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")

const storePass = "Correct-Horse-42"

type keyStoreFactory func(t *testing.T, dir string) domain.KeyStore

var factories = map[string]keyStoreFactory{
	"file": func(t *testing.T, dir string) domain.KeyStore {
		ks, err := store.OpenFileKeyStore(dir, storePass)
		require.NoError(t, err)
		return ks
	},
	"bolt": func(t *testing.T, dir string) domain.KeyStore {
		ks, err := store.OpenBoltKeyStore(dir, storePass)
		require.NoError(t, err)
		return ks
	},
	"memory": func(t *testing.T, dir string) domain.KeyStore {
		return store.NewMemoryKeyStore()
	},
}

func forEachStore(t *testing.T, fn func(t *testing.T, ks domain.KeyStore)) {
	for name, open := range factories {
		t.Run(name, func(t *testing.T) {
			ks := open(t, t.TempDir())
			t.Cleanup(func() { _ = ks.Close() })
			fn(t, ks)
		})
	}
}

func TestKeyStore_KeyPairLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, ks domain.KeyStore) {
		require := require.New(t)

		_, ok, err := ks.GetKeyPair(alice)
		require.NoError(err)
		require.False(ok)

		kp, err := crypto.GenerateKeyPair()
		require.NoError(err)
		require.NoError(ks.SaveKeyPair(alice, kp))

		// Lookups are case-insensitive on the address.
		got, ok, err := ks.GetKeyPair("0x00000000000000000000000000000000000000A1")
		require.NoError(err)
		require.True(ok)
		require.Equal(kp, got)

		require.NoError(ks.DeleteKeyPair(alice))
		_, ok, err = ks.GetKeyPair(alice)
		require.NoError(err)
		require.False(ok)

		// Deleting again is a no-op.
		require.NoError(ks.DeleteKeyPair(alice))
	})
}

func TestKeyStore_GroupKeys(t *testing.T) {
	forEachStore(t, func(t *testing.T, ks domain.KeyStore) {
		require := require.New(t)
		gid := addressing.GroupID(alice, 1)

		_, ok, err := ks.GetGroupKey(gid)
		require.NoError(err)
		require.False(ok)

		key := domain.GroupKey{9, 9, 9}
		require.NoError(ks.SaveGroupKey(gid, key))

		got, ok, err := ks.GetGroupKey(gid)
		require.NoError(err)
		require.True(ok)
		require.Equal(key, got)
	})
}

func TestKeyStore_ExportImportReplaces(t *testing.T) {
	forEachStore(t, func(t *testing.T, ks domain.KeyStore) {
		require := require.New(t)
		bob := domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
		gid := addressing.GroupID(alice, 1)

		kp, err := crypto.GenerateKeyPair()
		require.NoError(err)
		require.NoError(ks.SaveKeyPair(alice, kp))
		require.NoError(ks.SaveGroupKey(gid, domain.GroupKey{1}))

		bundle, err := ks.Export("Correct-Horse-9!")
		require.NoError(err)

		// Changes after the export are discarded by the import.
		other, err := crypto.GenerateKeyPair()
		require.NoError(err)
		require.NoError(ks.SaveKeyPair(bob, other))
		require.NoError(ks.DeleteKeyPair(alice))

		require.NoError(ks.Import("Correct-Horse-9!", bundle))

		got, ok, err := ks.GetKeyPair(alice)
		require.NoError(err)
		require.True(ok)
		require.Equal(kp, got)

		_, ok, err = ks.GetKeyPair(bob)
		require.NoError(err)
		require.False(ok)

		gk, ok, err := ks.GetGroupKey(gid)
		require.NoError(err)
		require.True(ok)
		require.Equal(domain.GroupKey{1}, gk)
	})
}

func TestKeyStore_ImportWrongPassphrase(t *testing.T) {
	forEachStore(t, func(t *testing.T, ks domain.KeyStore) {
		require := require.New(t)

		kp, err := crypto.GenerateKeyPair()
		require.NoError(err)
		require.NoError(ks.SaveKeyPair(alice, kp))

		bundle, err := ks.Export("right")
		require.NoError(err)

		require.ErrorIs(ks.Import("wrong", bundle), store.ErrWrongPassphrase)
		require.ErrorIs(ks.Import("right", []byte("garbage")), store.ErrWrongPassphrase)

		// A failed import leaves the store untouched.
		_, ok, err := ks.GetKeyPair(alice)
		require.NoError(err)
		require.True(ok)
	})
}

func TestKeyStore_ExportRejectsEmptyPassphrase(t *testing.T) {
	_, err := store.NewMemoryKeyStore().Export("")
	require.ErrorIs(t, err, store.ErrEmptyPassphrase)
}

func TestKeyStore_BundlePortableAcrossImplementations(t *testing.T) {
	require := require.New(t)

	src := store.NewMemoryKeyStore()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)
	require.NoError(src.SaveKeyPair(alice, kp))

	bundle, err := src.Export("pass")
	require.NoError(err)

	dst, err := store.OpenBoltKeyStore(t.TempDir(), storePass)
	require.NoError(err)
	defer dst.Close()
	require.NoError(dst.Import("pass", bundle))

	got, ok, err := dst.GetKeyPair(alice)
	require.NoError(err)
	require.True(ok)
	require.Equal(kp, got)
}

func TestDiskKeyStores_PersistAndEncryptAtRest(t *testing.T) {
	for name, file := range map[string]string{"file": "keys.json", "bolt": "keys.db"} {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			dir := t.TempDir()
			gid := addressing.GroupID(alice, 1)
			gk := domain.GroupKey{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04}

			kp, err := crypto.GenerateKeyPair()
			require.NoError(err)

			ks := factories[name](t, dir)
			require.NoError(ks.SaveKeyPair(alice, kp))
			require.NoError(ks.SaveGroupKey(gid, gk))
			require.NoError(ks.Close())

			raw, err := os.ReadFile(filepath.Join(dir, file))
			require.NoError(err)
			for _, secret := range [][]byte{kp.Private[:], kp.SigningPrivate[:], gk[:]} {
				require.False(bytes.Contains(raw, secret), "raw key bytes on disk")
				require.NotContains(string(raw), hex.EncodeToString(secret))
				require.NotContains(string(raw), base64.StdEncoding.EncodeToString(secret))
			}

			ks = factories[name](t, dir)
			defer ks.Close()
			got, ok, err := ks.GetKeyPair(alice)
			require.NoError(err)
			require.True(ok)
			require.Equal(kp, got)
			gotKey, ok, err := ks.GetGroupKey(gid)
			require.NoError(err)
			require.True(ok)
			require.Equal(gk, gotKey)
		})
	}
}

func TestDiskKeyStores_WrongPassphrase(t *testing.T) {
	openers := map[string]func(dir, pass string) (domain.KeyStore, error){
		"file": func(dir, pass string) (domain.KeyStore, error) { return store.OpenFileKeyStore(dir, pass) },
		"bolt": func(dir, pass string) (domain.KeyStore, error) { return store.OpenBoltKeyStore(dir, pass) },
	}
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			dir := t.TempDir()

			_, err := open(dir, "")
			require.ErrorIs(err, store.ErrLocked)

			ks, err := open(dir, storePass)
			require.NoError(err)
			require.NoError(ks.Close())

			_, err = open(dir, "Wrong-Horse-42")
			require.ErrorIs(err, store.ErrWrongPassphrase)

			ks, err = open(dir, storePass)
			require.NoError(err)
			require.NoError(ks.Close())
		})
	}
}

func TestFileKeyStore_TamperedEntryFails(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	bob := domain.MustParseAddress("0x00000000000000000000000000000000000000b2")

	ks, err := store.OpenFileKeyStore(dir, storePass)
	require.NoError(err)
	defer ks.Close()
	kp, err := crypto.GenerateKeyPair()
	require.NoError(err)
	require.NoError(ks.SaveKeyPair(alice, kp))

	// Moving alice's sealed entry under bob's name must not decrypt.
	path := filepath.Join(dir, "keys.json")
	raw, err := os.ReadFile(path)
	require.NoError(err)
	var doc map[string]json.RawMessage
	require.NoError(json.Unmarshal(raw, &doc))
	var pairs map[string]string
	require.NoError(json.Unmarshal(doc["key_pairs"], &pairs))
	pairs[bob.String()] = pairs[alice.String()]
	doc["key_pairs"], err = json.Marshal(pairs)
	require.NoError(err)
	raw, err = json.Marshal(doc)
	require.NoError(err)
	require.NoError(os.WriteFile(path, raw, 0o600))

	_, _, err = ks.GetKeyPair(bob)
	require.ErrorIs(err, store.ErrWrongPassphrase)
	got, ok, err := ks.GetKeyPair(alice)
	require.NoError(err)
	require.True(ok)
	require.Equal(kp, got)
}

func TestKeyStore_ConcurrentGroupKeyWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, ks domain.KeyStore) {
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				gid := addressing.GroupID(alice, uint64(i))
				assert.NoError(t, ks.SaveGroupKey(gid, domain.GroupKey{byte(i)}))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 16; i++ {
			got, ok, err := ks.GetGroupKey(addressing.GroupID(alice, uint64(i)))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, domain.GroupKey{byte(i)}, got)
		}
	})
}

func TestProfileFileStore(t *testing.T) {
	require := require.New(t)
	ps := store.NewProfileFileStore(t.TempDir())

	_, ok, err := ps.LoadProfile()
	require.NoError(err)
	require.False(ok)

	require.NoError(ps.SaveProfile(domain.Profile{Address: "0x00000000000000000000000000000000000000A1", Backend: "memory"}))
	p, ok, err := ps.LoadProfile()
	require.NoError(err)
	require.True(ok)
	require.Equal(alice, p.Address)
	require.Equal("memory", p.Backend)
}
