package store

import (
	"path/filepath"
	"sync"

	"cipherlog/internal/domain"
)

const profileFile = "profile.json"

// ProfileFileStore remembers the default local account on disk.
type ProfileFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewProfileFileStore returns a ProfileFileStore rooted at dir.
func NewProfileFileStore(dir string) *ProfileFileStore {
	return &ProfileFileStore{dir: dir}
}

// SaveProfile stores or replaces the profile.
func (s *ProfileFileStore) SaveProfile(profile domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile.Address = profile.Address.Normalize()
	return writeJSON(filepath.Join(s.dir, profileFile), profile)
}

// LoadProfile returns the stored profile; ok is false when none was saved.
func (s *ProfileFileStore) LoadProfile() (domain.Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var profile domain.Profile
	if err := readJSON(filepath.Join(s.dir, profileFile), &profile); err != nil {
		return domain.Profile{}, false, err
	}
	return profile, profile.Address != "", nil
}

// Compile-time assertion that ProfileFileStore implements domain.ProfileStore.
var _ domain.ProfileStore = (*ProfileFileStore)(nil)
