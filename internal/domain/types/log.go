package types

// Record is one schema-encoded entry to publish into the caller's slot.
type Record struct {
	ID       RecordID
	SchemaID SchemaID
	Data     []byte
}

// Row is a record as read back from a publisher slot.
type Row struct {
	ID        RecordID
	SchemaID  SchemaID
	Publisher Address
	Data      []byte
}
