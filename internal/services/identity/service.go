package identity

import (
	"context"
	"fmt"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
)

const (
	// minPassphraseLength defines the minimum number of characters required for a passphrase.
	minPassphraseLength = 12
)

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
)

// Service manages key pair creation and registration using a backing store.
type Service struct {
	keys     domain.KeyStore
	registry domain.PublicKeyRegistry
	log      *zap.Logger

	// mu serializes create-if-missing so two callers never generate
	// different key pairs for the same address.
	mu sync.Mutex
}

// New returns an identity service. A nil logger discards output.
func New(keys domain.KeyStore, registry domain.PublicKeyRegistry, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{keys: keys, registry: registry, log: log.Named("identity")}
}

// EnsureKeyPair returns the stored key pair for user, generating and saving
// one if none exists. created reports whether a new pair was made.
func (s *Service) EnsureKeyPair(user domain.Address) (domain.KeyPair, bool, error) {
	user, err := domain.ParseAddress(user.String())
	if err != nil {
		return domain.KeyPair{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kp, ok, err := s.keys.GetKeyPair(user)
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	if ok {
		// Pairs created before signing keys existed get one on first use.
		added, err := crypto.AddSigningKey(&kp)
		if err != nil {
			return domain.KeyPair{}, false, err
		}
		if added {
			if err := s.keys.SaveKeyPair(user, kp); err != nil {
				return domain.KeyPair{}, false, err
			}
			s.log.Info("added signing key", zap.Stringer("user", user))
		}
		return kp, false, nil
	}

	kp, err = crypto.GenerateKeyPair()
	if err != nil {
		return domain.KeyPair{}, false, err
	}
	if err := s.keys.SaveKeyPair(user, kp); err != nil {
		return domain.KeyPair{}, false, err
	}
	s.log.Info("generated key pair",
		zap.Stringer("user", user),
		zap.String("fingerprint", crypto.Fingerprint(kp.Public.Slice())),
	)
	return kp, true, nil
}

// Register publishes the user's public key and waits for the write to land.
// The key pair must already exist locally.
func (s *Service) Register(ctx context.Context, user domain.Address) error {
	user, err := domain.ParseAddress(user.String())
	if err != nil {
		return err
	}
	kp, ok, err := s.keys.GetKeyPair(user)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NoKeyPair(user)
	}

	tx, err := s.registry.Register(ctx, user, kp.Public)
	if err != nil {
		return fmt.Errorf("%w: register %s: %w", domain.ErrPublish, user, err)
	}
	if err := tx.Wait(ctx); err != nil {
		return fmt.Errorf("%w: register %s: %w", domain.ErrPublish, user, err)
	}
	s.log.Info("registered public key", zap.Stringer("user", user), zap.String("tx", tx.ID()))
	return nil
}

// Fingerprint returns a short fingerprint of the user's public key.
func (s *Service) Fingerprint(user domain.Address) (domain.Fingerprint, error) {
	kp, ok, err := s.keys.GetKeyPair(user.Normalize())
	if err != nil {
		return "", err
	}
	if !ok {
		return "", domain.NoKeyPair(user)
	}
	return domain.Fingerprint(crypto.Fingerprint(kp.Public.Slice())), nil
}

// Reset deletes the user's key pair. Messages sealed to the old key become
// undecryptable; a new pair is created on the next EnsureKeyPair.
func (s *Service) Reset(user domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.keys.DeleteKeyPair(user.Normalize()); err != nil {
		return err
	}
	s.log.Warn("key pair reset", zap.Stringer("user", user))
	return nil
}

// Export returns a passphrase-protected backup of every stored key.
func (s *Service) Export(passphrase string) ([]byte, error) {
	if !isSecurePassphrase(passphrase) {
		return nil, ErrWeakPassphrase
	}
	return s.keys.Export(passphrase)
}

// Import replaces the stored keys with the content of a backup.
func (s *Service) Import(passphrase string, bundle []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys.Import(passphrase, bundle)
}

// isSecurePassphrase enforces a basic strength policy.
func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

// Compile-time assertion that Service implements domain.IdentityService.
var _ domain.IdentityService = (*Service)(nil)
