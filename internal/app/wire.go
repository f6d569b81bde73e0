package app

import (
	"context"
	"fmt"
	"path/filepath"

	"cipherlog/internal/config"
	"cipherlog/internal/datalog"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/auth"
	"cipherlog/internal/store"
)

// NewKeyStore opens the key store selected by cfg under cfg.Home, unlocking
// it with cfg.KeyStore.Passphrase.
func NewKeyStore(cfg *config.Config) (domain.KeyStore, error) {
	dir := filepath.Join(cfg.Home, "keys")
	switch cfg.KeyStore.Kind {
	case config.KeyStoreBolt:
		return store.OpenBoltKeyStore(dir, cfg.KeyStore.Passphrase)
	case config.KeyStoreFile, "":
		return store.OpenFileKeyStore(dir, cfg.KeyStore.Passphrase)
	default:
		return nil, fmt.Errorf("unknown key store %q", cfg.KeyStore.Kind)
	}
}

// NewBackend connects to the log backend selected by cfg. signer signs
// writes to logd and is unused by the other backends.
func NewBackend(ctx context.Context, cfg config.Backend, signer auth.Signer) (domain.Backend, error) {
	switch cfg.Kind {
	case config.BackendMemory:
		return datalog.NewMemory(), nil
	case config.BackendRedis:
		return datalog.NewRedis(ctx, datalog.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	case config.BackendPostgres:
		return datalog.NewPostgres(ctx, datalog.PostgresConfig{DSN: cfg.Postgres.DSN})
	case config.BackendS3:
		return datalog.NewS3(ctx, datalog.S3Config{
			Region:    cfg.S3.Region,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Endpoint:  cfg.S3.Endpoint,
			Prefix:    cfg.S3.Prefix,
		})
	case config.BackendHTTP:
		return datalog.NewHTTP(datalog.HTTPConfig{
			BaseURL: cfg.HTTP.URL,
			Timeout: cfg.HTTP.Timeout,
			Signer:  signer,
		}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Kind)
	}
}
