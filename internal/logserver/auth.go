package logserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/auth"
)

// DefaultClockSkew bounds how far a request timestamp may drift from the
// server clock.
const DefaultClockSkew = 2 * time.Minute

var (
	errUnbound       = errors.New("address has no signing key bound; register first")
	errStale         = errors.New("request timestamp outside the accepted window")
	errReplay        = errors.New("request nonce already used")
	errReservedSlot  = errors.New("schema is reserved by the server")
	errMissingNonce  = errors.New("request has no nonce")
	errZeroSigningID = errors.New("signing key is all zeros")
)

// Signing-key bindings live in the backend itself, in a schema clients may
// not publish into, so they survive restarts with whatever backend logd runs on.
var (
	bindingSchema = domain.SchemaID(crypto.Keccak256([]byte("cipherlog/logd/binding/v1")))
	bindingID     = domain.RecordID(crypto.Keccak256([]byte("signing-key")))
)

type binding struct {
	_          struct{} `cbor:",toarray"`
	SigningKey [32]byte
	BoundAt    uint64
}

// authenticator checks request signatures against bound signing keys.
//
// Bindings are trust on first use: the first register for an address binds
// the key it carries. Rebinding needs a signature from the bound key.
type authenticator struct {
	backend domain.Backend
	skew    time.Duration
	now     func() time.Time

	// mu serializes bind-and-check so two first registrations cannot both win.
	mu sync.Mutex

	nonceMu sync.Mutex
	nonces  map[string]time.Time
}

func newAuthenticator(backend domain.Backend, skew time.Duration, now func() time.Time) *authenticator {
	if skew <= 0 {
		skew = DefaultClockSkew
	}
	if now == nil {
		now = time.Now
	}
	return &authenticator{backend: backend, skew: skew, now: now, nonces: make(map[string]time.Time)}
}

func (a *authenticator) bound(ctx context.Context, address domain.Address) (domain.Ed25519Public, bool, error) {
	rows, err := a.backend.ReadAllByPublisher(ctx, bindingSchema, address)
	if err != nil {
		return domain.Ed25519Public{}, false, err
	}
	var (
		key   domain.Ed25519Public
		found bool
	)
	for _, r := range rows {
		if r.ID != bindingID {
			continue
		}
		var b binding
		if err := cbor.Unmarshal(r.Data, &b); err != nil {
			return domain.Ed25519Public{}, false, fmt.Errorf("binding for %s: %w", address, err)
		}
		key, found = b.SigningKey, true
	}
	return key, found, nil
}

func (a *authenticator) bind(ctx context.Context, address domain.Address, key domain.Ed25519Public) error {
	data, err := cbor.Marshal(binding{SigningKey: key, BoundAt: uint64(a.now().UnixMilli())})
	if err != nil {
		return err
	}
	tx, err := a.backend.Publish(ctx, address, []domain.Record{{ID: bindingID, SchemaID: bindingSchema, Data: data}})
	if err != nil {
		return err
	}
	return tx.Wait(ctx)
}

// fresh rejects stamps outside the skew window and nonces seen within it.
func (a *authenticator) fresh(st auth.Stamp) error {
	if st.Nonce == "" {
		return errMissingNonce
	}
	now := a.now()
	at := time.UnixMilli(int64(st.Timestamp))
	if at.Before(now.Add(-a.skew)) || at.After(now.Add(a.skew)) {
		return errStale
	}

	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	for n, seen := range a.nonces {
		if now.Sub(seen) > 2*a.skew {
			delete(a.nonces, n)
		}
	}
	if _, ok := a.nonces[st.Nonce]; ok {
		return errReplay
	}
	a.nonces[st.Nonce] = now
	return nil
}

// authorizePublish verifies that the bound key of publisher signed the batch.
func (a *authenticator) authorizePublish(ctx context.Context, publisher domain.Address, st auth.Stamp, records []domain.Record, sig []byte) error {
	for _, r := range records {
		if r.SchemaID == bindingSchema {
			return errReservedSlot
		}
	}
	key, ok, err := a.bound(ctx, publisher)
	if err != nil {
		return err
	}
	if !ok {
		return errUnbound
	}
	msg, err := auth.PublishMessage(publisher, st, records)
	if err != nil {
		return err
	}
	if err := auth.Verify(key, msg, sig); err != nil {
		return err
	}
	return a.fresh(st)
}

// authorizeRegister verifies a registry write and binds signingKey to
// address. An unbound address accepts a self-signed request; a bound one
// needs the bound key's signature.
func (a *authenticator) authorizeRegister(
	ctx context.Context,
	address domain.Address,
	st auth.Stamp,
	publicKey domain.X25519Public,
	signingKey domain.Ed25519Public,
	sig []byte,
) error {
	if signingKey.IsZero() {
		return errZeroSigningID
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	current, ok, err := a.bound(ctx, address)
	if err != nil {
		return err
	}
	verifier := signingKey
	if ok {
		verifier = current
	}
	msg, err := auth.RegisterMessage(address, st, publicKey, signingKey)
	if err != nil {
		return err
	}
	if err := auth.Verify(verifier, msg, sig); err != nil {
		return err
	}
	if err := a.fresh(st); err != nil {
		return err
	}
	if ok && current == signingKey {
		return nil
	}
	return a.bind(ctx, address, signingKey)
}
