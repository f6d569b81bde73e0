package datalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cipherlog/internal/domain"
)

const (
	pgCreateRecords = `CREATE TABLE IF NOT EXISTS log_records (
	schema_id  BYTEA       NOT NULL,
	publisher  TEXT        NOT NULL,
	record_id  BYTEA       NOT NULL,
	data       BYTEA       NOT NULL,
	seq        BIGSERIAL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (schema_id, publisher, record_id)
)`
	pgCreateRegistry = `CREATE TABLE IF NOT EXISTS public_keys (
	address    TEXT        PRIMARY KEY,
	public_key BYTEA       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	pgUpsertRecord = `INSERT INTO log_records (schema_id, publisher, record_id, data)
VALUES ($1, $2, $3, $4)
ON CONFLICT (schema_id, publisher, record_id)
DO UPDATE SET data = EXCLUDED.data, updated_at = now()`
	pgSelectRecords = `SELECT record_id, data FROM log_records
WHERE schema_id = $1 AND publisher = $2
ORDER BY seq`
	pgUpsertKey = `INSERT INTO public_keys (address, public_key)
VALUES ($1, $2)
ON CONFLICT (address) DO UPDATE SET public_key = EXCLUDED.public_key, updated_at = now()`
	pgSelectKey = `SELECT public_key FROM public_keys WHERE address = $1`
)

// PostgresConfig configures the Postgres backend.
type PostgresConfig struct {
	DSN string
}

// Postgres stores records in one table keyed by (schema, publisher, record id).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and creates the tables if they do not exist.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	for _, stmt := range []string{pgCreateRecords, pgCreateRegistry} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return &Postgres{pool: pool}, nil
}

// Publish writes every record in one transaction.
func (p *Postgres) Publish(ctx context.Context, publisher domain.Address, records []domain.Record) (domain.Tx, error) {
	pub, err := validatePublish(publisher, records)
	if err != nil {
		return nil, err
	}
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(pgUpsertRecord, r.SchemaID[:], pub.String(), r.ID[:], r.Data)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return nil, fmt.Errorf("postgres publish: %w", err)
	}
	return newTx(), nil
}

func (p *Postgres) ReadAllByPublisher(ctx context.Context, schema domain.SchemaID, publisher domain.Address) ([]domain.Row, error) {
	rows, err := p.pool.Query(ctx, pgSelectRecords, schema[:], publisher.Normalize().String())
	if err != nil {
		return nil, fmt.Errorf("postgres read: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Row, error) {
		var (
			id   []byte
			data []byte
		)
		if err := row.Scan(&id, &data); err != nil {
			return domain.Row{}, err
		}
		return rowFromColumns(schema, publisher, id, data)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres read: %w", err)
	}
	return out, nil
}

func (p *Postgres) Register(ctx context.Context, address domain.Address, publicKey domain.X25519Public) (domain.Tx, error) {
	a, err := domain.ParseAddress(address.String())
	if err != nil {
		return nil, err
	}
	if _, err := p.pool.Exec(ctx, pgUpsertKey, a.String(), publicKey[:]); err != nil {
		return nil, fmt.Errorf("postgres register: %w", err)
	}
	return newTx(), nil
}

func (p *Postgres) Fetch(ctx context.Context, address domain.Address) (domain.X25519Public, bool, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, pgSelectKey, address.Normalize().String()).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.X25519Public{}, false, nil
	}
	if err != nil {
		return domain.X25519Public{}, false, fmt.Errorf("postgres fetch: %w", err)
	}
	var pub domain.X25519Public
	if len(raw) != len(pub) {
		return domain.X25519Public{}, false, fmt.Errorf("postgres fetch %s: key is %d bytes", address, len(raw))
	}
	copy(pub[:], raw)
	return pub, true, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// rowFromColumns converts a selected (record_id, data) pair into a Row.
func rowFromColumns(schema domain.SchemaID, publisher domain.Address, id, data []byte) (domain.Row, error) {
	var rid domain.RecordID
	if len(id) != len(rid) {
		return domain.Row{}, fmt.Errorf("record id is %d bytes", len(id))
	}
	copy(rid[:], id)
	return domain.Row{ID: rid, SchemaID: schema, Publisher: publisher.Normalize(), Data: data}, nil
}

var _ domain.Backend = (*Postgres)(nil)
