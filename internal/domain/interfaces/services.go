package interfaces

import (
	"context"

	domaintypes "cipherlog/internal/domain/types"
)

// IdentityService creates, registers, backs up and resets local key pairs.
type IdentityService interface {
	EnsureKeyPair(user domaintypes.Address) (domaintypes.KeyPair, bool, error)
	Register(ctx context.Context, user domaintypes.Address) error
	Fingerprint(user domaintypes.Address) (domaintypes.Fingerprint, error)
	Reset(user domaintypes.Address) error
	Export(passphrase string) ([]byte, error)
	Import(passphrase string, bundle []byte) error
}

// MessageService encrypts, publishes, assembles and clears direct messages.
type MessageService interface {
	SendMessage(
		ctx context.Context,
		from domaintypes.Address,
		to domaintypes.Address,
		plaintext string,
		opts domaintypes.SendOptions,
	) (domaintypes.SendResult, error)
	Transcript(
		ctx context.Context,
		me domaintypes.Address,
		peer domaintypes.Address,
		limit int,
	) ([]domaintypes.DecryptedMessage, error)
	ClearChat(
		ctx context.Context,
		me domaintypes.Address,
		peer domaintypes.Address,
	) (domaintypes.ClearResult, error)
	DeleteMessage(
		ctx context.Context,
		me domaintypes.Address,
		id domaintypes.RecordID,
	) error
}

// GroupService creates groups, distributes group keys and handles group messages.
type GroupService interface {
	CreateGroup(ctx context.Context, creator domaintypes.Address) (domaintypes.Group, error)
	WrapGroupKey(
		group domaintypes.GroupID,
		member domaintypes.Address,
		memberPublicKey domaintypes.X25519Public,
	) (domaintypes.GroupKeyShare, error)
	ShareGroupKey(
		ctx context.Context,
		from domaintypes.Address,
		group domaintypes.GroupID,
		member domaintypes.Address,
	) (domaintypes.Pending, error)
	ReceiveGroupKey(me domaintypes.Address, share domaintypes.GroupKeyShare) error
	SyncGroupKeys(
		ctx context.Context,
		me domaintypes.Address,
		from domaintypes.Address,
	) (int, error)
	SendGroupMessage(
		ctx context.Context,
		sender domaintypes.Address,
		group domaintypes.GroupID,
		plaintext string,
		opts domaintypes.SendOptions,
	) (domaintypes.SendResult, error)
	GroupTranscript(
		ctx context.Context,
		group domaintypes.GroupID,
		members []domaintypes.Address,
		limit int,
	) ([]domaintypes.DecryptedMessage, error)
	ClearGroupChat(
		ctx context.Context,
		me domaintypes.Address,
		group domaintypes.GroupID,
	) (domaintypes.ClearResult, error)
}
