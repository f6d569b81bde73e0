package store

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"cipherlog/internal/domain"
)

const keysFile = "keys.json"

// fileKeys is the on-disk layout of keys.json. Every value is sealed by the
// vault described in the header.
type fileKeys struct {
	Vault     *vaultHeader      `json:"vault"`
	KeyPairs  map[string][]byte `json:"key_pairs"`
	GroupKeys map[string][]byte `json:"group_keys"`
}

// FileKeyStore persists key pairs and group keys to a JSON file under dir.
// Entries are encrypted under a key derived from the passphrase given at open.
//
// Every write rewrites the file atomically while holding the store lock.
type FileKeyStore struct {
	dir   string
	mu    sync.Mutex
	vault *vault
	head  vaultHeader
}

// OpenFileKeyStore unlocks the key file under dir with passphrase, creating
// it if it does not exist yet.
func OpenFileKeyStore(dir, passphrase string) (*FileKeyStore, error) {
	s := &FileKeyStore{dir: dir}
	keys, err := s.read()
	if err != nil {
		return nil, err
	}
	if keys.Vault == nil {
		if len(keys.KeyPairs)+len(keys.GroupKeys) > 0 {
			return nil, fmt.Errorf("%s has entries but no vault header", s.path())
		}
		if s.vault, s.head, err = newVault(passphrase, defaultScrypt); err != nil {
			return nil, err
		}
		keys.Vault = &s.head
		if err := writeJSON(s.path(), keys); err != nil {
			return nil, err
		}
		return s, nil
	}
	if s.vault, err = unlockVault(passphrase, *keys.Vault); err != nil {
		return nil, err
	}
	s.head = *keys.Vault
	return s, nil
}

func (s *FileKeyStore) path() string { return filepath.Join(s.dir, keysFile) }

func (s *FileKeyStore) read() (fileKeys, error) {
	var keys fileKeys
	if err := readJSON(s.path(), &keys); err != nil {
		return fileKeys{}, err
	}
	if keys.KeyPairs == nil {
		keys.KeyPairs = make(map[string][]byte)
	}
	if keys.GroupKeys == nil {
		keys.GroupKeys = make(map[string][]byte)
	}
	return keys, nil
}

func (s *FileKeyStore) write(keys fileKeys) error {
	keys.Vault = &s.head
	return writeJSON(s.path(), keys)
}

func (s *FileKeyStore) openKeyPair(entry string, blob []byte) (domain.KeyPair, error) {
	raw, err := s.vault.open(keyPairEntry(entry), blob)
	if err != nil {
		return domain.KeyPair{}, err
	}
	var kp domain.KeyPair
	if err := cbor.Unmarshal(raw, &kp); err != nil {
		return domain.KeyPair{}, fmt.Errorf("decode key pair %s: %w", entry, err)
	}
	return kp, nil
}

func (s *FileKeyStore) openGroupKey(entry string, blob []byte) (domain.GroupKey, error) {
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

// GetKeyPair returns the key pair stored for user.
func (s *FileKeyStore) GetKeyPair(user domain.Address) (domain.KeyPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	blob, ok := keys.KeyPairs[userEntry(user)]
	if !ok {
		return domain.KeyPair{}, false, nil
	}
	kp, err := s.openKeyPair(userEntry(user), blob)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	return kp, true, nil
}

// SaveKeyPair stores or replaces the key pair for user.
func (s *FileKeyStore) SaveKeyPair(user domain.Address, pair domain.KeyPair) error {
	raw, err := cbor.Marshal(pair)
	if err != nil {
		return err
	}
	blob, err := s.vault.seal(keyPairEntry(userEntry(user)), raw)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return err
	}
	keys.KeyPairs[userEntry(user)] = blob
	return s.write(keys)
}

// DeleteKeyPair removes the key pair for user. Deleting a missing entry is a no-op.
func (s *FileKeyStore) DeleteKeyPair(user domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := keys.KeyPairs[userEntry(user)]; !ok {
		return nil
	}
	delete(keys.KeyPairs, userEntry(user))
	return s.write(keys)
}

// GetGroupKey returns the key stored for group.
func (s *FileKeyStore) GetGroupKey(group domain.GroupID) (domain.GroupKey, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return domain.GroupKey{}, false, err
	}
	blob, ok := keys.GroupKeys[groupEntry(group)]
	if !ok {
		return domain.GroupKey{}, false, nil
	}
	k, err := s.openGroupKey(groupEntry(group), blob)
	if err != nil {
		return domain.GroupKey{}, false, err
	}
	return k, true, nil
}

// SaveGroupKey stores or replaces the key for group.
func (s *FileKeyStore) SaveGroupKey(group domain.GroupID, key domain.GroupKey) error {
	blob, err := s.vault.seal(groupKeyEntry(groupEntry(group)), key.Slice())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.read()
	if err != nil {
		return err
	}
	keys.GroupKeys[groupEntry(group)] = blob
	return s.write(keys)
}

// Export seals every stored key under passphrase.
func (s *FileKeyStore) Export(passphrase string) ([]byte, error) {
	s.mu.Lock()
	keys, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	b := newKeyBundle()
	for entry, blob := range keys.KeyPairs {
		if b.KeyPairs[entry], err = s.openKeyPair(entry, blob); err != nil {
			return nil, err
		}
	}
	for entry, blob := range keys.GroupKeys {
		if b.GroupKeys[entry], err = s.openGroupKey(entry, blob); err != nil {
			return nil, err
		}
	}
	return exportBundle(passphrase, b)
}

// Import replaces the file content with the bundle content, sealed under
// the store's own passphrase.
func (s *FileKeyStore) Import(passphrase string, bundle []byte) error {
	b, err := importBundle(passphrase, bundle)
	if err != nil {
		return err
	}
	keys := fileKeys{
		KeyPairs:  make(map[string][]byte, len(b.KeyPairs)),
		GroupKeys: make(map[string][]byte, len(b.GroupKeys)),
	}
	for entry, kp := range b.KeyPairs {
		raw, err := cbor.Marshal(kp)
		if err != nil {
			return err
		}
		if keys.KeyPairs[entry], err = s.vault.seal(keyPairEntry(entry), raw); err != nil {
			return err
		}
	}
	for entry, k := range b.GroupKeys {
		if keys.GroupKeys[entry], err = s.vault.seal(groupKeyEntry(entry), k.Slice()); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(keys)
}

// Close wipes the derived key; the file is not held open.
func (s *FileKeyStore) Close() error {
	s.vault.close()
	return nil
}

// Compile-time assertion that FileKeyStore implements domain.KeyStore.
var _ domain.KeyStore = (*FileKeyStore)(nil)
