package logview_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/datalog"
	"cipherlog/internal/domain"
	"cipherlog/internal/services/logview"
)

var (
	alice  = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob    = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
	schema = domain.SchemaID{0x5c}
)

func record(id byte, data string) domain.Record {
	return domain.Record{ID: domain.RecordID{id}, SchemaID: schema, Data: []byte(data)}
}

func TestReadSlots_ConcatenatesDistinctPublishers(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	m := datalog.NewMemory()
	_, err := m.Publish(ctx, alice, []domain.Record{record(1, "a")})
	require.NoError(err)
	_, err = m.Publish(ctx, bob, []domain.Record{record(2, "b")})
	require.NoError(err)

	rows, err := logview.ReadSlots(ctx, m, schema, bob, alice, alice)
	require.NoError(err)
	require.Len(rows, 2)
	require.Equal(bob, rows[0].Publisher)
	require.Equal(alice, rows[1].Publisher)
}

func TestDedupe_LastVersionWinsInFirstPosition(t *testing.T) {
	rows := []domain.Row{
		{ID: domain.RecordID{1}, Publisher: alice, Data: []byte("v1")},
		{ID: domain.RecordID{2}, Publisher: alice, Data: []byte("other")},
		{ID: domain.RecordID{1}, Publisher: bob, Data: []byte("bob's")},
		{ID: domain.RecordID{1}, Publisher: alice, Data: []byte("v2")},
	}
	got := logview.Dedupe(rows)
	require.Len(t, got, 3)
	require.Equal(t, "v2", string(got[0].Data))
	require.Equal(t, "other", string(got[1].Data))
	require.Equal(t, "bob's", string(got[2].Data))
}

func TestTail(t *testing.T) {
	require := require.New(t)
	items := []int{1, 2, 3, 4}
	require.Equal([]int{3, 4}, logview.Tail(items, 2))
	require.Equal(items, logview.Tail(items, 0))
	require.Equal(items, logview.Tail(items, 10))
}

type flakyLog struct {
	*datalog.Memory
	calls atomic.Int32

	mu sync.Mutex
	// failures counts the remaining failures per record; negative fails forever.
	failures map[domain.RecordID]int
}

func (l *flakyLog) Publish(ctx context.Context, p domain.Address, records []domain.Record) (domain.Tx, error) {
	l.calls.Add(1)
	l.mu.Lock()
	n := l.failures[records[0].ID]
	if n > 0 {
		l.failures[records[0].ID] = n - 1
	}
	l.mu.Unlock()
	if n != 0 {
		return nil, errors.New("unavailable")
	}
	return l.Memory.Publish(ctx, p, records)
}

func TestOverwrite_RetriesThenReportsFailures(t *testing.T) {
	require := require.New(t)
	log := &flakyLog{
		Memory: datalog.NewMemory(),
		failures: map[domain.RecordID]int{
			{2}: 1,  // recovers on the second try
			{3}: -1, // never recovers
		},
	}
	o := logview.Overwriter{Log: log, Attempts: 2, Backoff: time.Millisecond}

	res, err := o.Overwrite(context.Background(), alice, []domain.Record{record(1, "x"), record(2, "y"), record(3, "z")})
	require.ErrorIs(err, domain.ErrPartialClear)
	require.Equal(2, res.Cleared)
	require.Len(res.Failed, 1)
	require.Equal(domain.RecordID{3}, res.Failed[0].ID)
	require.ErrorIs(res.Failed[0].Err, domain.ErrPublish)
	require.EqualValues(5, log.calls.Load())
}

func TestOverwrite_Empty(t *testing.T) {
	res, err := logview.Overwriter{Log: datalog.NewMemory()}.Overwrite(context.Background(), alice, nil)
	require.NoError(t, err)
	require.Zero(t, res.Cleared)
}
