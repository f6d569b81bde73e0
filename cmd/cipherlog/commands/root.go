package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"cipherlog/internal/app"
	"cipherlog/internal/config"
	"cipherlog/internal/domain"
	"cipherlog/internal/logger"
	"cipherlog/internal/store"
)

const (
	configFile   = "config.toml"
	drainTimeout = 10 * time.Second
)

var (
	home       string
	configPath string
	backend    string
	as         string
	passphrase string
	backupPass string

	appCtx *app.App
)

// Execute runs the CLI with the process arguments.
func Execute() error {
	return execute(newRootCmd())
}

// execute runs root and closes the app whether or not the command failed.
func execute(root *cobra.Command) error {
	err := root.Execute()
	if cerr := closeApp(); err == nil {
		err = cerr
	}
	return err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cipherlog",
		Short:         "End-to-end encrypted messaging over a public append-only log",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
			if err != nil {
				return err
			}
			appCtx, err = app.New(cmd.Context(), cfg, log)
			if errors.Is(err, store.ErrLocked) {
				return fmt.Errorf("%w: pass -p or set $%s", err, passphraseEnv)
			}
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.cipherlog)")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default <home>/config.toml)")
	root.PersistentFlags().StringVar(&backend, "backend", "", "log backend: memory, redis, postgres, s3 or http")
	root.PersistentFlags().StringVar(&as, "as", "", "act as this address (default: the address given to init)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "key store passphrase (or $"+passphraseEnv+")")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		sendCmd(),
		readCmd(),
		deleteCmd(),
		clearCmd(),
		groupCmd(),
		keysCmd(),
		resetCmd(),
	)
	return root
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	if home != "" {
		cfg.Home = home
	}
	if configPath == "" {
		if candidate := filepath.Join(cfg.Home, configFile); fileExists(candidate) {
			if cfg, err = config.LoadFile(candidate); err != nil {
				return nil, err
			}
			if home != "" {
				cfg.Home = home
			}
		}
	}
	if backend != "" {
		cfg.Backend.Kind = backend
	}
	if passphrase != "" {
		cfg.KeyStore.Passphrase = passphrase
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	return cfg, cfg.FixupAndValidate()
}

func closeApp() error {
	if appCtx == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	err := appCtx.Close(ctx)
	_ = appCtx.Log.Sync()
	appCtx = nil
	return err
}

// self resolves the acting address from --as or the saved profile.
func self() (domain.Address, error) {
	if as != "" {
		return domain.ParseAddress(as)
	}
	p, ok, err := appCtx.Profiles.LoadProfile()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("no account selected: run init <address> or pass --as")
	}
	return p.Address, nil
}

func parseAddress(s string) (domain.Address, error) {
	a, err := domain.ParseAddress(s)
	if err != nil {
		return "", fmt.Errorf("%q is not an address: %w", s, err)
	}
	return a, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
