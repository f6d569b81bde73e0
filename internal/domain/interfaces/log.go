package interfaces

import (
	"context"

	domaintypes "cipherlog/internal/domain/types"
)

// Tx is the handle of a write to the log; the write is only guaranteed to be
// visible once Wait returns nil.
type Tx interface {
	ID() string
	Wait(ctx context.Context) error
}

// MessageLog is the public append-only record log.
//
// Records are keyed by (schema, publisher, record id). Publishing an existing
// key overwrites it; nothing is ever removed.
type MessageLog interface {
	Publish(
		ctx context.Context,
		publisher domaintypes.Address,
		records []domaintypes.Record,
	) (Tx, error)
	ReadAllByPublisher(
		ctx context.Context,
		schema domaintypes.SchemaID,
		publisher domaintypes.Address,
	) ([]domaintypes.Row, error)
}

// PublicKeyRegistry maps addresses to their long-term public keys.
type PublicKeyRegistry interface {
	Register(
		ctx context.Context,
		address domaintypes.Address,
		publicKey domaintypes.X25519Public,
	) (Tx, error)
	Fetch(
		ctx context.Context,
		address domaintypes.Address,
	) (domaintypes.X25519Public, bool, error)
}

// Backend is a storage substrate that provides both the log and the registry.
type Backend interface {
	MessageLog
	PublicKeyRegistry
	Close() error
}
