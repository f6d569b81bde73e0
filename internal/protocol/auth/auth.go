// Package auth builds and checks the signatures that bind writes on a shared
// log server to the address that owns the slot.
//
// A client signs every publish and registry write with the Ed25519 key of the
// address it writes for. The signed message is a deterministic CBOR array of
// a context string, the address, a millisecond timestamp, a random nonce and
// the request content, so a signature cannot be moved to another route,
// another slot or another batch of records.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"cipherlog/internal/crypto"
	"cipherlog/internal/domain"
)

const (
	publishContext  = "cipherlog/logd/publish/v1"
	registerContext = "cipherlog/logd/register/v1"
)

var (
	// ErrCannotSign is returned when no signing key is held for an address.
	ErrCannotSign = errors.New("no signing key for address")
	// ErrBadSignature is returned when a signature does not verify.
	ErrBadSignature = errors.New("signature does not verify")
)

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type signedRecord struct {
	_        struct{} `cbor:",toarray"`
	SchemaID [32]byte
	ID       [32]byte
	Data     []byte
}

type publishPayload struct {
	_         struct{} `cbor:",toarray"`
	Context   string
	Publisher [domain.AddressLength]byte
	Timestamp uint64
	Nonce     string
	Records   []signedRecord
}

type registerPayload struct {
	_          struct{} `cbor:",toarray"`
	Context    string
	Address    [domain.AddressLength]byte
	Timestamp  uint64
	Nonce      string
	PublicKey  [32]byte
	SigningKey [32]byte
}

// Stamp is the freshness part of a signed request.
type Stamp struct {
	Timestamp uint64
	Nonce     string
}

// NewStamp returns a stamp for now with a random nonce.
func NewStamp(now time.Time) Stamp {
	return Stamp{Timestamp: uint64(now.UnixMilli()), Nonce: uuid.NewString()}
}

// PublishMessage returns the bytes signed for a publish of records into
// publisher's slot.
func PublishMessage(publisher domain.Address, st Stamp, records []domain.Record) ([]byte, error) {
	p := publishPayload{
		Context:   publishContext,
		Publisher: publisher.Bytes(),
		Timestamp: st.Timestamp,
		Nonce:     st.Nonce,
		Records:   make([]signedRecord, len(records)),
	}
	for i, r := range records {
		p.Records[i] = signedRecord{SchemaID: r.SchemaID, ID: r.ID, Data: r.Data}
	}
	return encMode.Marshal(p)
}

// RegisterMessage returns the bytes signed to bind publicKey and signingKey
// to address.
func RegisterMessage(address domain.Address, st Stamp, publicKey domain.X25519Public, signingKey domain.Ed25519Public) ([]byte, error) {
	return encMode.Marshal(registerPayload{
		Context:    registerContext,
		Address:    address.Bytes(),
		Timestamp:  st.Timestamp,
		Nonce:      st.Nonce,
		PublicKey:  publicKey,
		SigningKey: signingKey,
	})
}

// Verify checks sig over msg with pub.
func Verify(pub domain.Ed25519Public, msg, sig []byte) error {
	if !crypto.VerifyEd25519(pub, msg, sig) {
		return ErrBadSignature
	}
	return nil
}

// Signer signs requests on behalf of local addresses.
type Signer interface {
	// SigningKey returns the public signing key of address.
	SigningKey(address domain.Address) (domain.Ed25519Public, error)
	// Sign signs msg with the signing key of address.
	Sign(address domain.Address, msg []byte) ([]byte, error)
}

// KeyStoreSigner signs with the key pairs held in a key store.
type KeyStoreSigner struct {
	Keys domain.KeyStore
}

func (s KeyStoreSigner) pair(address domain.Address) (domain.KeyPair, error) {
	kp, ok, err := s.Keys.GetKeyPair(address.Normalize())
	if err != nil {
		return domain.KeyPair{}, err
	}
	if !ok {
		return domain.KeyPair{}, domain.NoKeyPair(address)
	}
	if !kp.CanSign() {
		return domain.KeyPair{}, fmt.Errorf("%w %s", ErrCannotSign, address)
	}
	return kp, nil
}

func (s KeyStoreSigner) SigningKey(address domain.Address) (domain.Ed25519Public, error) {
	kp, err := s.pair(address)
	if err != nil {
		return domain.Ed25519Public{}, err
	}
	return kp.SigningPublic, nil
}

func (s KeyStoreSigner) Sign(address domain.Address, msg []byte) ([]byte, error) {
	kp, err := s.pair(address)
	if err != nil {
		return nil, err
	}
	return crypto.SignEd25519(kp.SigningPrivate, msg), nil
}

var _ Signer = KeyStoreSigner{}
