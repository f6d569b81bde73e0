package datalog

import (
	"context"
	"sync"

	"cipherlog/internal/domain"
)

type slot struct {
	schema    domain.SchemaID
	publisher domain.Address
}

// Memory is an in-process log and registry.
//
// It is append-only: republishing a record id appends a new version and
// reads return every version in publish order.
type Memory struct {
	mu       sync.RWMutex
	slots    map[slot][]domain.Row
	registry map[domain.Address]domain.X25519Public
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		slots:    make(map[slot][]domain.Row),
		registry: make(map[domain.Address]domain.X25519Public),
	}
}

func (m *Memory) Publish(ctx context.Context, publisher domain.Address, records []domain.Record) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := validatePublish(publisher, records)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		k := slot{schema: r.SchemaID, publisher: p}
		m.slots[k] = append(m.slots[k], domain.Row{
			ID:        r.ID,
			SchemaID:  r.SchemaID,
			Publisher: p,
			Data:      append([]byte(nil), r.Data...),
		})
	}
	return newTx(), nil
}

func (m *Memory) ReadAllByPublisher(ctx context.Context, schema domain.SchemaID, publisher domain.Address) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.slots[slot{schema: schema, publisher: publisher.Normalize()}]
	out := make([]domain.Row, len(rows))
	for i, r := range rows {
		r.Data = append([]byte(nil), r.Data...)
		out[i] = r
	}
	return out, nil
}

func (m *Memory) Register(ctx context.Context, address domain.Address, publicKey domain.X25519Public) (domain.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, err := domain.ParseAddress(address.String())
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.registry[a] = publicKey
	m.mu.Unlock()
	return newTx(), nil
}

func (m *Memory) Fetch(ctx context.Context, address domain.Address) (domain.X25519Public, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.X25519Public{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	pub, ok := m.registry[address.Normalize()]
	return pub, ok, nil
}

func (m *Memory) Close() error { return nil }

var _ domain.Backend = (*Memory)(nil)
