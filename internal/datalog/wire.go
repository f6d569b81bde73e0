package datalog

import (
	"fmt"

	"cipherlog/internal/domain"
)

// WireRecord is the JSON form of a record on the logd HTTP API. Data is
// base64 encoded by encoding/json.
type WireRecord struct {
	ID        string `json:"id"`
	SchemaID  string `json:"schema_id"`
	Publisher string `json:"publisher,omitempty"`
	Data      []byte `json:"data"`
}

// PublishRequest is the body of POST /v1/records. Signature is the
// publisher's Ed25519 signature over auth.PublishMessage.
type PublishRequest struct {
	Publisher string       `json:"publisher"`
	Records   []WireRecord `json:"records"`
	Timestamp uint64       `json:"timestamp"`
	Nonce     string       `json:"nonce"`
	Signature []byte       `json:"signature"`
}

// PublishResponse is returned by POST /v1/records and PUT /v1/registry.
type PublishResponse struct {
	TxID string `json:"tx_id"`
}

// RowsResponse is returned by GET /v1/records/:schema/:publisher.
type RowsResponse struct {
	Rows []WireRecord `json:"rows"`
}

// RegistryEntry is the body of PUT and the response of GET /v1/registry/:address.
// The signing fields are only set on PUT: Signature is made over
// auth.RegisterMessage by the key currently bound to the address, or by
// SigningKey itself on first registration.
type RegistryEntry struct {
	Address    string `json:"address,omitempty"`
	PublicKey  string `json:"public_key"`
	SigningKey string `json:"signing_key,omitempty"`
	Timestamp  uint64 `json:"timestamp,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	Signature  []byte `json:"signature,omitempty"`
}

// ErrorResponse is the body of every non-2xx logd response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RecordToWire converts a record for the HTTP API.
func RecordToWire(r domain.Record) WireRecord {
	return WireRecord{ID: r.ID.String(), SchemaID: r.SchemaID.String(), Data: r.Data}
}

// RowToWire converts a row for the HTTP API.
func RowToWire(r domain.Row) WireRecord {
	return WireRecord{
		ID:        r.ID.String(),
		SchemaID:  r.SchemaID.String(),
		Publisher: r.Publisher.String(),
		Data:      r.Data,
	}
}

// RecordFromWire parses a record received over the HTTP API.
func RecordFromWire(w WireRecord) (domain.Record, error) {
	id, err := domain.ParseRecordID(w.ID)
	if err != nil {
		return domain.Record{}, fmt.Errorf("record id: %w", err)
	}
	schema, err := domain.ParseSchemaID(w.SchemaID)
	if err != nil {
		return domain.Record{}, fmt.Errorf("schema id: %w", err)
	}
	return domain.Record{ID: id, SchemaID: schema, Data: w.Data}, nil
}

// RowFromWire parses a row received over the HTTP API.
func RowFromWire(w WireRecord) (domain.Row, error) {
	r, err := RecordFromWire(w)
	if err != nil {
		return domain.Row{}, err
	}
	publisher, err := domain.ParseAddress(w.Publisher)
	if err != nil {
		return domain.Row{}, err
	}
	return domain.Row{ID: r.ID, SchemaID: r.SchemaID, Publisher: publisher, Data: r.Data}, nil
}
