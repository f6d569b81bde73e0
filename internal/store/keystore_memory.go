package store

import (
	"sync"

	"cipherlog/internal/domain"
)

// MemoryKeyStore keeps keys in process memory. It is used by tests and by
// throwaway CLI sessions.
type MemoryKeyStore struct {
	mu        sync.RWMutex
	keyPairs  map[string]domain.KeyPair
	groupKeys map[string]domain.GroupKey
}

// NewMemoryKeyStore returns an empty MemoryKeyStore.
func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		keyPairs:  make(map[string]domain.KeyPair),
		groupKeys: make(map[string]domain.GroupKey),
	}
}

func (s *MemoryKeyStore) GetKeyPair(user domain.Address) (domain.KeyPair, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.keyPairs[userEntry(user)]
	return kp, ok, nil
}

func (s *MemoryKeyStore) SaveKeyPair(user domain.Address, pair domain.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyPairs[userEntry(user)] = pair
	return nil
}

func (s *MemoryKeyStore) DeleteKeyPair(user domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keyPairs, userEntry(user))
	return nil
}

func (s *MemoryKeyStore) GetGroupKey(group domain.GroupID) (domain.GroupKey, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.groupKeys[groupEntry(group)]
	return k, ok, nil
}

func (s *MemoryKeyStore) SaveGroupKey(group domain.GroupID, key domain.GroupKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupKeys[groupEntry(group)] = key
	return nil
}

func (s *MemoryKeyStore) Export(passphrase string) ([]byte, error) {
	b := newKeyBundle()
	s.mu.RLock()
	for k, v := range s.keyPairs {
		b.KeyPairs[k] = v
	}
	for k, v := range s.groupKeys {
		b.GroupKeys[k] = v
	}
	s.mu.RUnlock()
	return exportBundle(passphrase, b)
}

func (s *MemoryKeyStore) Import(passphrase string, bundle []byte) error {
	b, err := importBundle(passphrase, bundle)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keyPairs, s.groupKeys = b.KeyPairs, b.GroupKeys
	return nil
}

func (s *MemoryKeyStore) Close() error { return nil }

var _ domain.KeyStore = (*MemoryKeyStore)(nil)
