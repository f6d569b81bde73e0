package types

import "context"

// Pending is a handle on a best-effort background write. Callers may wait on
// it or ignore it.
type Pending interface {
	Name() string
	Done() <-chan struct{}
	Wait(ctx context.Context) error
}

// SendOptions carries the optional record fields of an outgoing message.
type SendOptions struct {
	MessageType MessageType
	MediaURL    string
	ReplyTo     RecordID
}

// SendResult describes a message whose primary record is published.
type SendResult struct {
	ID        RecordID
	Timestamp uint64
	// SelfCopy is the background publish of the sender-readable copy; nil for
	// group messages.
	SelfCopy Pending
}

// ClearFailure is one record that could not be soft-deleted.
type ClearFailure struct {
	ID  RecordID
	Err error
}

// ClearResult reports the outcome of a clear-chat batch.
type ClearResult struct {
	Cleared int
	Failed  []ClearFailure
}

// Group is the local view of a freshly created group.
type Group struct {
	ID        GroupID
	Creator   Address
	CreatedAt uint64
}
