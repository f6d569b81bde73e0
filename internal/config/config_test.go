package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cipherlog/internal/config"
)

func TestLoad_TOMLOverDefaults(t *testing.T) {
	require := require.New(t)
	t.Setenv("CIPHERLOG_HOME", t.TempDir())

	cfg, err := config.Load([]byte(`
[Logging]
Mode = "production"

[Backend]
Kind = "redis"

[Backend.Redis]
Addr = "redis:6379"
DB = 2

[Messaging]
PollInterval = "5s"
`))
	require.NoError(err)
	require.Equal("production", cfg.Logging.Mode)
	require.Equal("info", cfg.Logging.Level)
	require.Equal(config.BackendRedis, cfg.Backend.Kind)
	require.Equal("redis:6379", cfg.Backend.Redis.Addr)
	require.Equal(2, cfg.Backend.Redis.DB)
	require.Equal(5*time.Second, cfg.Messaging.PollInterval)
	require.Equal(50, cfg.Messaging.TranscriptLimit)
}

func TestApplyEnv_Overrides(t *testing.T) {
	require := require.New(t)
	env := map[string]string{
		"CIPHERLOG_BACKEND":          "postgres",
		"CIPHERLOG_POSTGRES_DSN":     "postgres://x",
		"CIPHERLOG_TRANSCRIPT_LIMIT": "7",
		"CIPHERLOG_RETRY_BACKOFF":    "1s",
		"CIPHERLOG_REDIS_DB":         "not a number",
		"CIPHERLOG_PASSPHRASE":       "Correct-Horse-42",
	}
	cfg := config.Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	require.Equal(config.BackendPostgres, cfg.Backend.Kind)
	require.Equal("postgres://x", cfg.Backend.Postgres.DSN)
	require.Equal(7, cfg.Messaging.TranscriptLimit)
	require.Equal(time.Second, cfg.Messaging.RetryBackoff)
	require.Equal(0, cfg.Backend.Redis.DB)
	require.Equal("Correct-Horse-42", cfg.KeyStore.Passphrase)
}

func TestFixupAndValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		mutate  func(*config.Config)
		wantErr bool
	}{
		"defaults":         {mutate: func(*config.Config) {}},
		"unknown backend":  {mutate: func(c *config.Config) { c.Backend.Kind = "ftp" }, wantErr: true},
		"unknown keystore": {mutate: func(c *config.Config) { c.KeyStore.Kind = "vault" }, wantErr: true},
		"s3 needs bucket":  {mutate: func(c *config.Config) { c.Backend.Kind = config.BackendS3 }, wantErr: true},
		"postgres no dsn":  {mutate: func(c *config.Config) { c.Backend.Kind = config.BackendPostgres }, wantErr: true},
		"negative limit":   {mutate: func(c *config.Config) { c.Messaging.TranscriptLimit = -1 }, wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Home = t.TempDir()
			tc.mutate(cfg)
			err := cfg.FixupAndValidate()
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestLoadFile_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CIPHERLOG_HOME", t.TempDir())
	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	require.Equal(t, config.BackendHTTP, cfg.Backend.Kind)
}

func TestLoadDotEnv(t *testing.T) {
	require := require.New(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(os.WriteFile(path, []byte("CIPHERLOG_TEST_DOTENV=yes\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CIPHERLOG_TEST_DOTENV") })

	require.NoError(config.LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	require.Equal("yes", os.Getenv("CIPHERLOG_TEST_DOTENV"))
}
