package datalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/datalog"
	"cipherlog/internal/domain"
)

var (
	alice  = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob    = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
	schema = domain.SchemaID{0xaa}
)

func TestMemory_PublishRead(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := datalog.NewMemory()

	tx, err := m.Publish(ctx, alice, []domain.Record{
		{ID: domain.RecordID{1}, SchemaID: schema, Data: []byte("one")},
		{ID: domain.RecordID{2}, SchemaID: schema, Data: []byte("two")},
	})
	require.NoError(err)
	require.NotEmpty(tx.ID())
	require.NoError(tx.Wait(ctx))

	rows, err := m.ReadAllByPublisher(ctx, schema, alice)
	require.NoError(err)
	require.Len(rows, 2)
	require.Equal(alice, rows[0].Publisher)
	require.Equal("one", string(rows[0].Data))

	// Slots are per publisher and per schema.
	rows, err = m.ReadAllByPublisher(ctx, schema, bob)
	require.NoError(err)
	require.Empty(rows)
	rows, err = m.ReadAllByPublisher(ctx, domain.SchemaID{0xbb}, alice)
	require.NoError(err)
	require.Empty(rows)
}

func TestMemory_OverwriteKeepsHistory(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := datalog.NewMemory()

	id := domain.RecordID{7}
	_, err := m.Publish(ctx, alice, []domain.Record{{ID: id, SchemaID: schema, Data: []byte("v1")}})
	require.NoError(err)
	_, err = m.Publish(ctx, alice, []domain.Record{{ID: id, SchemaID: schema, Data: []byte("v2")}})
	require.NoError(err)

	rows, err := m.ReadAllByPublisher(ctx, schema, alice)
	require.NoError(err)
	require.Len(rows, 2)
	require.Equal("v1", string(rows[0].Data))
	require.Equal("v2", string(rows[1].Data))
}

func TestMemory_PublishValidates(t *testing.T) {
	ctx := context.Background()
	m := datalog.NewMemory()

	_, err := m.Publish(ctx, "nope", []domain.Record{{ID: domain.RecordID{1}, SchemaID: schema}})
	require.ErrorIs(t, err, domain.ErrInvalidAddress)

	_, err = m.Publish(ctx, alice, []domain.Record{{SchemaID: schema}})
	require.Error(t, err)
}

func TestMemory_Registry(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := datalog.NewMemory()

	_, ok, err := m.Fetch(ctx, alice)
	require.NoError(err)
	require.False(ok)

	pub := domain.X25519Public{5}
	_, err = m.Register(ctx, "0x00000000000000000000000000000000000000A1", pub)
	require.NoError(err)

	got, ok, err := m.Fetch(ctx, alice)
	require.NoError(err)
	require.True(ok)
	require.Equal(pub, got)
}

func TestWire_RowRoundTrip(t *testing.T) {
	require := require.New(t)
	row := domain.Row{ID: domain.RecordID{1}, SchemaID: schema, Publisher: alice, Data: []byte{0x80}}

	got, err := datalog.RowFromWire(datalog.RowToWire(row))
	require.NoError(err)
	require.Equal(row, got)

	_, err = datalog.RecordFromWire(datalog.WireRecord{ID: "xyz", SchemaID: schema.String()})
	require.Error(err)
}
