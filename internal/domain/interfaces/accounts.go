package interfaces

import domaintypes "cipherlog/internal/domain/types"

// ProfileStore persists the CLI's default local account.
type ProfileStore interface {
	SaveProfile(profile domaintypes.Profile) error
	LoadProfile() (domaintypes.Profile, bool, error)
}
