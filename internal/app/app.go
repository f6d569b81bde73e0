package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cipherlog/internal/config"
	"cipherlog/internal/domain"
	"cipherlog/internal/protocol/auth"
	groupsvc "cipherlog/internal/services/group"
	identitysvc "cipherlog/internal/services/identity"
	messagesvc "cipherlog/internal/services/message"
	"cipherlog/internal/store"
	"cipherlog/internal/tasks"
)

// App bundles the stores, backend and services for one process.
type App struct {
	Config   *config.Config
	Log      *zap.Logger
	Keys     domain.KeyStore
	Profiles domain.ProfileStore
	Backend  domain.Backend
	Runner   *tasks.Runner

	Identity *identitysvc.Service
	Messages *messagesvc.Service
	Groups   *groupsvc.Service
}

// New constructs the dependency graph from cfg. A nil logger discards output.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	keys, err := NewKeyStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("key store: %w", err)
	}
	backend, err := NewBackend(ctx, cfg.Backend, auth.KeyStoreSigner{Keys: keys})
	if err != nil {
		_ = keys.Close()
		return nil, fmt.Errorf("backend %s: %w", cfg.Backend.Kind, err)
	}
	return NewWithBackend(cfg, keys, backend, log), nil
}

// NewWithBackend builds the services over an already opened key store and
// backend. The App takes ownership of both.
func NewWithBackend(cfg *config.Config, keys domain.KeyStore, backend domain.Backend, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	m := cfg.Messaging
	runner := tasks.NewRunner(tasks.Config{
		Attempts: m.SideWriteAttempts,
		Backoff:  m.RetryBackoff,
	}, log)

	return &App{
		Config:   cfg,
		Log:      log,
		Keys:     keys,
		Profiles: store.NewProfileFileStore(cfg.Home),
		Backend:  backend,
		Runner:   runner,
		Identity: identitysvc.New(keys, backend, log),
		Messages: messagesvc.New(keys, backend, backend, runner, messagesvc.Config{
			TranscriptLimit: m.TranscriptLimit,
			ClearAttempts:   m.ClearAttempts,
			ClearBackoff:    m.RetryBackoff,
			PollInterval:    m.PollInterval,
		}, log),
		Groups: groupsvc.New(keys, backend, backend, runner, groupsvc.Config{
			TranscriptLimit: m.TranscriptLimit,
			ClearAttempts:   m.ClearAttempts,
			ClearBackoff:    m.RetryBackoff,
		}, log),
	}
}

// Close waits for background writes up to ctx, then releases the runner,
// the backend and the key store.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Runner.Drain(ctx); err != nil {
		a.Log.Warn("background writes still pending at shutdown", zap.Error(err))
	}
	a.Runner.Close()
	if err := a.Backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if err := a.Keys.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close key store: %w", err))
	}
	return errors.Join(errs...)
}
