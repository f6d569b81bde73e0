package domain

import (
	interfaces "cipherlog/internal/domain/interfaces"
	types "cipherlog/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Address             = types.Address
	Hash32              = types.Hash32
	ConversationID      = types.ConversationID
	GroupID             = types.GroupID
	RecordID            = types.RecordID
	SchemaID            = types.SchemaID
	Fingerprint         = types.Fingerprint
	X25519Public        = types.X25519Public
	X25519Private       = types.X25519Private
	Ed25519Public       = types.Ed25519Public
	Ed25519Private      = types.Ed25519Private
	KeyPair             = types.KeyPair
	GroupKey            = types.GroupKey
	EnvelopeFormat      = types.EnvelopeFormat
	Envelope            = types.Envelope
	GroupCiphertext     = types.GroupCiphertext
	MessageType         = types.MessageType
	DirectMessageRecord = types.DirectMessageRecord
	GroupMessageRecord  = types.GroupMessageRecord
	GroupKeyShareRecord = types.GroupKeyShareRecord
	GroupKeyShare       = types.GroupKeyShare
	DecryptedMessage    = types.DecryptedMessage
	Record              = types.Record
	Row                 = types.Row
	Pending             = types.Pending
	SendOptions         = types.SendOptions
	SendResult          = types.SendResult
	ClearFailure        = types.ClearFailure
	ClearResult         = types.ClearResult
	Group               = types.Group
	Profile             = types.Profile
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyStore          = interfaces.KeyStore
	ProfileStore      = interfaces.ProfileStore
	Tx                = interfaces.Tx
	MessageLog        = interfaces.MessageLog
	PublicKeyRegistry = interfaces.PublicKeyRegistry
	Backend           = interfaces.Backend
	IdentityService   = interfaces.IdentityService
	MessageService    = interfaces.MessageService
	GroupService      = interfaces.GroupService
)

const (
	FormatLegacy    = types.FormatLegacy
	FormatEphemeral = types.FormatEphemeral

	MessageText  = types.MessageText
	MessageImage = types.MessageImage
	MessageAudio = types.MessageAudio
	MessageVideo = types.MessageVideo
	MessageFile  = types.MessageFile

	AddressLength = types.AddressLength
	GroupKeySize  = types.GroupKeySize

	UndecryptablePlaceholder = types.UndecryptablePlaceholder
)

var (
	ParseAddress       = types.ParseAddress
	MustParseAddress   = types.MustParseAddress
	AddressFromBytes   = types.AddressFromBytes
	ParseHash32        = types.ParseHash32
	ParseGroupID       = types.ParseGroupID
	ParseRecordID      = types.ParseRecordID
	ParseSchemaID      = types.ParseSchemaID
	ParseX25519Public  = types.ParseX25519Public
	ParseEd25519Public = types.ParseEd25519Public
)
