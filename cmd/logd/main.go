package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"cipherlog/internal/app"
	"cipherlog/internal/config"
	"cipherlog/internal/logger"
	"cipherlog/internal/logserver"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		backend    string
	)
	cmd := &cobra.Command{
		Use:          "logd",
		Short:        "Serve the cipherlog append-only log and key registry over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if backend != "" {
				cfg.Backend.Kind = backend
			}
			// The client default points at logd itself.
			fellBack := cfg.Backend.Kind == config.BackendHTTP
			if fellBack {
				cfg.Backend.Kind = config.BackendMemory
			}
			if err := cfg.FixupAndValidate(); err != nil {
				return err
			}

			log, err := logger.New(cfg.Logging.Mode, cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if fellBack {
				log.Warn("no storage backend configured, serving from memory")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&backend, "backend", "", "storage backend: memory, redis, postgres or s3")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	backend, err := app.NewBackend(ctx, cfg.Backend, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("close backend", zap.Error(err))
		}
	}()

	mode := logserver.DebugMode
	if cfg.Logging.Mode == logger.ProductionMode {
		mode = logserver.ReleaseMode
	}
	log.Info("logd starting", zap.String("addr", cfg.Server.Addr), zap.String("backend", cfg.Backend.Kind))
	return logserver.New(logserver.Config{Addr: cfg.Server.Addr, Mode: mode}, backend, log).Run(ctx)
}
