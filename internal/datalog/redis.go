package datalog

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"cipherlog/internal/domain"
)

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Redis stores each publisher slot as a hash keyed by record id and the
// registry as one hash keyed by address.
type Redis struct {
	client *goredis.Client
	prefix string
}

// NewRedis connects to Redis and checks the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewRedisFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *goredis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "cipherlog"
	}
	return &Redis{client: client, prefix: prefix}
}

// slotKey is the hash holding one publisher's records for one schema.
func (r *Redis) slotKey(schema domain.SchemaID, publisher domain.Address) string {
	return fmt.Sprintf("%s:log:%s:%s", r.prefix, schema, publisher.Normalize())
}

func (r *Redis) registryKey() string {
	return r.prefix + ":registry"
}

func (r *Redis) Publish(ctx context.Context, publisher domain.Address, records []domain.Record) (domain.Tx, error) {
	p, err := validatePublish(publisher, records)
	if err != nil {
		return nil, err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, rec := range records {
			pipe.HSet(ctx, r.slotKey(rec.SchemaID, p), rec.ID.String(), rec.Data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis publish: %w", err)
	}
	return newTx(), nil
}

func (r *Redis) ReadAllByPublisher(ctx context.Context, schema domain.SchemaID, publisher domain.Address) ([]domain.Row, error) {
	fields, err := r.client.HGetAll(ctx, r.slotKey(schema, publisher)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read: %w", err)
	}
	rows := make([]domain.Row, 0, len(fields))
	for field, data := range fields {
		id, err := domain.ParseRecordID(field)
		if err != nil {
			return nil, fmt.Errorf("redis read: bad record id %q: %w", field, err)
		}
		rows = append(rows, domain.Row{
			ID:        id,
			SchemaID:  schema,
			Publisher: publisher.Normalize(),
			Data:      []byte(data),
		})
	}
	return rows, nil
}

func (r *Redis) Register(ctx context.Context, address domain.Address, publicKey domain.X25519Public) (domain.Tx, error) {
	a, err := domain.ParseAddress(address.String())
	if err != nil {
		return nil, err
	}
	if err := r.client.HSet(ctx, r.registryKey(), a.String(), publicKey.Hex()).Err(); err != nil {
		return nil, fmt.Errorf("redis register: %w", err)
	}
	return newTx(), nil
}

func (r *Redis) Fetch(ctx context.Context, address domain.Address) (domain.X25519Public, bool, error) {
	s, err := r.client.HGet(ctx, r.registryKey(), address.Normalize().String()).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.X25519Public{}, false, nil
	}
	if err != nil {
		return domain.X25519Public{}, false, fmt.Errorf("redis fetch: %w", err)
	}
	pub, err := domain.ParseX25519Public(s)
	if err != nil {
		return domain.X25519Public{}, false, fmt.Errorf("redis fetch %s: %w", address, err)
	}
	return pub, true, nil
}

func (r *Redis) Close() error { return r.client.Close() }

var _ domain.Backend = (*Redis)(nil)
