package datalog

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"cipherlog/internal/domain"
)

var (
	keyTestPublisher = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	keyTestSchema    = domain.SchemaID{0xaa}
)

func TestRedis_KeyLayout(t *testing.T) {
	require := require.New(t)
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	r := NewRedisFromClient(client, "")
	require.Equal("cipherlog:log:"+keyTestSchema.String()+":"+keyTestPublisher.String(),
		r.slotKey(keyTestSchema, "0x00000000000000000000000000000000000000A1"))
	require.Equal("cipherlog:registry", r.registryKey())

	r = NewRedisFromClient(client, "test")
	require.Equal("test:registry", r.registryKey())
}

func TestS3_KeyLayout(t *testing.T) {
	require := require.New(t)
	s := &S3{bucket: "b", prefix: "env"}
	id := domain.RecordID{9}

	key := s.recordKey(keyTestSchema, keyTestPublisher, id)
	require.Equal("env/log/"+keyTestSchema.String()+"/"+keyTestPublisher.String()+"/"+id.String(), key)

	got, err := recordIDFromKey(s.slotPrefix(keyTestSchema, keyTestPublisher), key)
	require.NoError(err)
	require.Equal(id, got)

	_, err = recordIDFromKey(s.slotPrefix(keyTestSchema, keyTestPublisher), "env/registry/x")
	require.Error(err)

	require.Equal("registry/"+keyTestPublisher.String(), (&S3{}).registryKey(keyTestPublisher))
}

func TestPostgres_RowFromColumns(t *testing.T) {
	require := require.New(t)
	id := domain.RecordID{3}

	row, err := rowFromColumns(keyTestSchema, keyTestPublisher, id[:], []byte("d"))
	require.NoError(err)
	require.Equal(domain.Row{ID: id, SchemaID: keyTestSchema, Publisher: keyTestPublisher, Data: []byte("d")}, row)

	_, err = rowFromColumns(keyTestSchema, keyTestPublisher, []byte{1, 2}, nil)
	require.Error(err)
}
