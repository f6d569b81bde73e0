// Package config loads cipherlog configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// TOML file, a .env file and CIPHERLOG_* environment variables. Command line
// flags are applied by the caller afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "CIPHERLOG_"

// Key store kinds.
const (
	KeyStoreFile = "file"
	KeyStoreBolt = "bolt"
)

// Backend kinds.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
	BackendHTTP     = "http"
)

// Config is the top-level configuration.
type Config struct {
	Home      string
	Logging   Logging
	KeyStore  KeyStore
	Backend   Backend
	Messaging Messaging
	Server    Server
}

// Logging selects the zap mode and level.
type Logging struct {
	Mode  string
	Level string
}

// KeyStore selects the local key storage.
type KeyStore struct {
	Kind string
	// Passphrase unlocks the file and bolt stores. It is read from the
	// environment or a flag, never from the config file.
	Passphrase string `toml:"-"`
}

// Backend selects and configures the log and registry substrate.
type Backend struct {
	Kind     string
	Redis    Redis
	Postgres Postgres
	S3       S3
	HTTP     HTTP
}

type Redis struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Postgres struct {
	DSN string
}

type S3 struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	Prefix    string
}

type HTTP struct {
	URL     string
	Timeout time.Duration
}

// Messaging tunes the messaging services.
type Messaging struct {
	// TranscriptLimit is the default number of messages a read returns.
	TranscriptLimit int
	// SideWriteAttempts bounds tries of self-copy and key-share publishes.
	SideWriteAttempts int
	RetryBackoff      time.Duration
	// ClearAttempts bounds tries per record when clearing a chat.
	ClearAttempts int
	PollInterval  time.Duration
}

// Server configures the logd daemon.
type Server struct {
	Addr string
}

// Default returns the configuration used when nothing else is given.
func Default() *Config {
	return &Config{
		Logging:  Logging{Mode: "development", Level: "info"},
		KeyStore: KeyStore{Kind: KeyStoreFile},
		Backend: Backend{
			Kind:  BackendHTTP,
			Redis: Redis{Addr: "localhost:6379", KeyPrefix: "cipherlog"},
			HTTP:  HTTP{URL: "http://127.0.0.1:8080", Timeout: 10 * time.Second},
		},
		Messaging: Messaging{
			TranscriptLimit:   50,
			SideWriteAttempts: 3,
			RetryBackoff:      200 * time.Millisecond,
			ClearAttempts:     3,
			PollInterval:      2 * time.Second,
		},
		Server: Server{Addr: ":8080"},
	}
}

// Load parses b as a TOML body over the defaults, applies the environment
// and validates the result.
func Load(b []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads path; an empty path or a missing file yields the defaults
// plus the environment.
func LoadFile(path string) (*Config, error) {
	var b []byte
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return Load(b)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Existing variables win; missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from CIPHERLOG_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(envPrefix + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(envPrefix + key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	str("HOME", &c.Home)
	str("LOG_MODE", &c.Logging.Mode)
	str("LOG_LEVEL", &c.Logging.Level)
	str("KEYSTORE", &c.KeyStore.Kind)
	str("PASSPHRASE", &c.KeyStore.Passphrase)
	str("BACKEND", &c.Backend.Kind)

	str("REDIS_ADDR", &c.Backend.Redis.Addr)
	str("REDIS_PASSWORD", &c.Backend.Redis.Password)
	num("REDIS_DB", &c.Backend.Redis.DB)
	str("REDIS_KEY_PREFIX", &c.Backend.Redis.KeyPrefix)

	str("POSTGRES_DSN", &c.Backend.Postgres.DSN)

	str("S3_REGION", &c.Backend.S3.Region)
	str("S3_BUCKET", &c.Backend.S3.Bucket)
	str("S3_ACCESS_KEY", &c.Backend.S3.AccessKey)
	str("S3_SECRET_KEY", &c.Backend.S3.SecretKey)
	str("S3_ENDPOINT", &c.Backend.S3.Endpoint)
	str("S3_PREFIX", &c.Backend.S3.Prefix)

	str("LOGD_URL", &c.Backend.HTTP.URL)
	dur("LOGD_TIMEOUT", &c.Backend.HTTP.Timeout)

	num("TRANSCRIPT_LIMIT", &c.Messaging.TranscriptLimit)
	num("SIDE_WRITE_ATTEMPTS", &c.Messaging.SideWriteAttempts)
	dur("RETRY_BACKOFF", &c.Messaging.RetryBackoff)
	num("CLEAR_ATTEMPTS", &c.Messaging.ClearAttempts)
	dur("POLL_INTERVAL", &c.Messaging.PollInterval)

	str("LISTEN_ADDR", &c.Server.Addr)
}

// FixupAndValidate fills derived defaults and rejects unusable settings.
func (c *Config) FixupAndValidate() error {
	if c.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: resolve home: %w", err)
		}
		c.Home = filepath.Join(dir, ".cipherlog")
	}

	switch c.KeyStore.Kind {
	case "":
		c.KeyStore.Kind = KeyStoreFile
	case KeyStoreFile, KeyStoreBolt:
	default:
		return fmt.Errorf("config: unknown key store %q", c.KeyStore.Kind)
	}

	switch c.Backend.Kind {
	case BackendMemory:
	case BackendRedis:
		if c.Backend.Redis.Addr == "" {
			return errors.New("config: redis backend needs Backend.Redis.Addr")
		}
	case BackendPostgres:
		if c.Backend.Postgres.DSN == "" {
			return errors.New("config: postgres backend needs Backend.Postgres.DSN")
		}
	case BackendS3:
		if c.Backend.S3.Region == "" || c.Backend.S3.Bucket == "" {
			return errors.New("config: s3 backend needs Backend.S3.Region and Backend.S3.Bucket")
		}
	case BackendHTTP:
		if c.Backend.HTTP.URL == "" {
			return errors.New("config: http backend needs Backend.HTTP.URL")
		}
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend.Kind)
	}

	if c.Messaging.TranscriptLimit < 0 {
		return errors.New("config: Messaging.TranscriptLimit must not be negative")
	}
	if c.Messaging.SideWriteAttempts <= 0 {
		c.Messaging.SideWriteAttempts = 1
	}
	if c.Messaging.ClearAttempts <= 0 {
		c.Messaging.ClearAttempts = 1
	}
	if c.Messaging.PollInterval <= 0 {
		c.Messaging.PollInterval = 2 * time.Second
	}
	return nil
}
