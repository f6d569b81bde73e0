package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"cipherlog/internal/domain"
)

const (
	boltFile        = "keys.db"
	metaBucket      = "meta"
	keyPairsBucket  = "keypairs"
	groupKeysBucket = "groupkeys"
	vaultKey        = "vault"
)

// BoltKeyStore persists keys in a bbolt database under dir. Values are CBOR
// encoded and sealed under the passphrase given at open; bbolt serializes
// writers, so each Save is one transaction.
type BoltKeyStore struct {
	db    *bolt.DB
	vault *vault
}

// OpenBoltKeyStore opens (creating if needed) the key database under dir and
// unlocks it with passphrase.
func OpenBoltKeyStore(dir, passphrase string) (*BoltKeyStore, error) {
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dir, boltFile), fileMode, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open key database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{metaBucket, keyPairsBucket, groupKeysBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	v, err := unlockBolt(db, passphrase)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltKeyStore{db: db, vault: v}, nil
}

// unlockBolt reads the vault header from the meta bucket, writing a new one
// on first open.
func unlockBolt(db *bolt.DB, passphrase string) (*vault, error) {
	var v *vault
	err := db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		if raw := meta.Get([]byte(vaultKey)); raw != nil {
			var h vaultHeader
			if err := cbor.Unmarshal(raw, &h); err != nil {
				return fmt.Errorf("decode vault header: %w", err)
			}
			var err error
			v, err = unlockVault(passphrase, h)
			return err
		}
		if k, _ := tx.Bucket([]byte(keyPairsBucket)).Cursor().First(); k != nil {
			return errors.New("key database has entries but no vault header")
		}
		nv, h, err := newVault(passphrase, defaultScrypt)
		if err != nil {
			return err
		}
		raw, err := cbor.Marshal(h)
		if err != nil {
			return err
		}
		v = nv
		return meta.Put([]byte(vaultKey), raw)
	})
	return v, err
}

func (s *BoltKeyStore) sealKeyPair(entry string, kp domain.KeyPair) ([]byte, error) {
	raw, err := cbor.Marshal(kp)
	if err != nil {
		return nil, err
	}
	return s.vault.seal(keyPairEntry(entry), raw)
}

func (s *BoltKeyStore) openKeyPair(entry string, blob []byte) (domain.KeyPair, error) {
	var kp domain.KeyPair
	raw, err := s.vault.open(keyPairEntry(entry), blob)
	if err != nil {
		return kp, err
	}
	if err := cbor.Unmarshal(raw, &kp); err != nil {
		return kp, fmt.Errorf("decode key pair %s: %w", entry, err)
	}
	return kp, nil
}

func (s *BoltKeyStore) openGroupKey(entry string, blob []byte) (domain.GroupKey, error) {
	var k domain.GroupKey
	raw, err := s.vault.open(groupKeyEntry(entry), blob)
	if err != nil {
		return k, err
	}
	if len(raw) != len(k) {
		return k, fmt.Errorf("group key %s: stored value is %d bytes", entry, len(raw))
	}
	copy(k[:], raw)
	return k, nil
}

func (s *BoltKeyStore) GetKeyPair(user domain.Address) (domain.KeyPair, bool, error) {
	var (
		kp domain.KeyPair
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		blob := tx.Bucket([]byte(keyPairsBucket)).Get([]byte(userEntry(user)))
		if blob == nil {
			return nil
		}
		var err error
		kp, err = s.openKeyPair(userEntry(user), blob)
		ok = err == nil
		return err
	})
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	return kp, ok, nil
}

func (s *BoltKeyStore) SaveKeyPair(user domain.Address, pair domain.KeyPair) error {
	blob, err := s.sealKeyPair(userEntry(user), pair)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keyPairsBucket)).Put([]byte(userEntry(user)), blob)
	})
}

func (s *BoltKeyStore) DeleteKeyPair(user domain.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(keyPairsBucket)).Delete([]byte(userEntry(user)))
	})
}

func (s *BoltKeyStore) GetGroupKey(group domain.GroupID) (domain.GroupKey, bool, error) {
	var (
		k  domain.GroupKey
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		blob := tx.Bucket([]byte(groupKeysBucket)).Get([]byte(groupEntry(group)))
		if blob == nil {
			return nil
		}
		var err error
		k, err = s.openGroupKey(groupEntry(group), blob)
		ok = err == nil
		return err
	})
	if err != nil {
		return domain.GroupKey{}, false, err
	}
	return k, ok, nil
}

func (s *BoltKeyStore) SaveGroupKey(group domain.GroupID, key domain.GroupKey) error {
	blob, err := s.vault.seal(groupKeyEntry(groupEntry(group)), key.Slice())
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(groupKeysBucket)).Put([]byte(groupEntry(group)), blob)
	})
}

func (s *BoltKeyStore) Export(passphrase string) ([]byte, error) {
	b := newKeyBundle()
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(keyPairsBucket)).ForEach(func(k, v []byte) error {
			kp, err := s.openKeyPair(string(k), v)
			if err != nil {
				return err
			}
			b.KeyPairs[string(k)] = kp
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket([]byte(groupKeysBucket)).ForEach(func(k, v []byte) error {
			gk, err := s.openGroupKey(string(k), v)
			if err != nil {
				return err
			}
			b.GroupKeys[string(k)] = gk
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return exportBundle(passphrase, b)
}

// Import drops both buckets and refills them from the bundle in a single
// transaction.
func (s *BoltKeyStore) Import(passphrase string, bundle []byte) error {
	b, err := importBundle(passphrase, bundle)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{keyPairsBucket, groupKeysBucket} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
				return err
			}
		}
		kps, err := tx.CreateBucket([]byte(keyPairsBucket))
		if err != nil {
			return err
		}
		gks, err := tx.CreateBucket([]byte(groupKeysBucket))
		if err != nil {
			return err
		}
		for user, kp := range b.KeyPairs {
			blob, err := s.sealKeyPair(user, kp)
			if err != nil {
				return err
			}
			if err := kps.Put([]byte(user), blob); err != nil {
				return err
			}
		}
		for group, k := range b.GroupKeys {
			blob, err := s.vault.seal(groupKeyEntry(group), k.Slice())
			if err != nil {
				return err
			}
			if err := gks.Put([]byte(group), blob); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltKeyStore) Close() error {
	s.vault.close()
	return s.db.Close()
}

var _ domain.KeyStore = (*BoltKeyStore)(nil)
