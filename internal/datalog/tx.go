package datalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"cipherlog/internal/domain"
)

// committedTx is the handle of a write that was durable when Publish returned.
type committedTx struct {
	id string
}

func newTx() committedTx { return committedTx{id: uuid.NewString()} }

func (t committedTx) ID() string { return t.id }

func (t committedTx) Wait(context.Context) error { return nil }

// validatePublish normalizes publisher and rejects records the log cannot key.
func validatePublish(publisher domain.Address, records []domain.Record) (domain.Address, error) {
	p, err := domain.ParseAddress(publisher.String())
	if err != nil {
		return "", err
	}
	for i, r := range records {
		if r.ID == (domain.RecordID{}) || r.SchemaID == (domain.SchemaID{}) {
			return "", fmt.Errorf("record %d: missing id or schema", i)
		}
	}
	return p, nil
}
