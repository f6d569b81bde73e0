package interfaces

import domaintypes "cipherlog/internal/domain/types"

// KeyStore persists a user's key pairs and the group keys they hold.
//
// Lookups return ok=false rather than an error when nothing is stored.
// Implementations serialize writes so concurrent encrypt/decrypt calls see
// consistent entries.
type KeyStore interface {
	GetKeyPair(user domaintypes.Address) (domaintypes.KeyPair, bool, error)
	SaveKeyPair(user domaintypes.Address, pair domaintypes.KeyPair) error
	DeleteKeyPair(user domaintypes.Address) error

	GetGroupKey(group domaintypes.GroupID) (domaintypes.GroupKey, bool, error)
	SaveGroupKey(group domaintypes.GroupID, key domaintypes.GroupKey) error

	// Export returns every stored key as a passphrase-protected opaque bundle.
	Export(passphrase string) ([]byte, error)
	// Import replaces the store content with the bundle content.
	Import(passphrase string, bundle []byte) error

	Close() error
}
