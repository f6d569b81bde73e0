package envelope

import (
	"context"
	"fmt"

	"cipherlog/internal/domain"
)

// Decryptor opens serialized envelopes, fetching the counterparty's public
// key from the registry only when the envelope uses the legacy format.
type Decryptor struct {
	registry domain.PublicKeyRegistry
}

// NewDecryptor returns a Decryptor backed by registry. A nil registry makes
// every legacy envelope fail with domain.ErrRegistryMiss.
func NewDecryptor(registry domain.PublicKeyRegistry) *Decryptor {
	return &Decryptor{registry: registry}
}

// Open parses content and decrypts it with own. counterparty is the other
// party of the key agreement for legacy envelopes: the sender when own is
// the recipient, the recipient when own is the sender.
func (d *Decryptor) Open(ctx context.Context, content string, own domain.KeyPair, counterparty domain.Address) ([]byte, error) {
	env, err := Parse(content)
	if err != nil {
		return nil, err
	}

	switch env.Format {
	case domain.FormatEphemeral:
		return Open(env, own, nil)
	case domain.FormatLegacy:
		pub, err := d.lookup(ctx, counterparty)
		if err != nil {
			return nil, err
		}
		return Open(env, own, &pub)
	default:
		return nil, fmt.Errorf("%w: %w: format %s", domain.ErrDecrypt, domain.ErrMalformedEnvelope, env.Format)
	}
}

func (d *Decryptor) lookup(ctx context.Context, addr domain.Address) (domain.X25519Public, error) {
	if d.registry == nil {
		return domain.X25519Public{}, fmt.Errorf("%w: %w: %s", domain.ErrDecrypt, domain.ErrRegistryMiss, addr)
	}
	pub, ok, err := d.registry.Fetch(ctx, addr)
	if err != nil {
		return domain.X25519Public{}, fmt.Errorf("%w: %w: %s: %v", domain.ErrDecrypt, domain.ErrRegistryMiss, addr, err)
	}
	if !ok || pub.IsZero() {
		return domain.X25519Public{}, fmt.Errorf("%w: %w: %s", domain.ErrDecrypt, domain.ErrRegistryMiss, addr)
	}
	return pub, nil
}
