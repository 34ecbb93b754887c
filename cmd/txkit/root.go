package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"txkit/internal/config"
	"txkit/internal/core"
	"txkit/internal/logging"
	"txkit/pkg/domain"
)

var (
	flagConfig        string
	flagStorageDriver string
	flagSQLitePath    string
	flagPostgresDSN   string
	flagBadgerDir     string
	flagLogLevel      string

	cfg    config.Config
	logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "txkit",
	Short:         "Submit transactions and drive browser sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(config.LoadOptions{
			ConfigPath:    flagConfig,
			FlagOverrides: flagOverrides(cmd),
		})
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(level)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "config file (default ./"+config.DefaultConfigFile+" when present)")
	pf.StringVar(&flagStorageDriver, "storage-driver", "", "store backend: memory, sqlite, postgres or badger")
	pf.StringVar(&flagSQLitePath, "sqlite-path", "", "sqlite database file")
	pf.StringVar(&flagPostgresDSN, "postgres-dsn", "", "postgres connection string")
	pf.StringVar(&flagBadgerDir, "badger-dir", "", "badger data directory")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
}

// flagOverrides returns only the flags the user actually set, keyed by
// config path.
func flagOverrides(cmd *cobra.Command) map[string]any {
	bindings := map[string]struct {
		key string
		val *string
	}{
		"storage-driver": {"storage.driver", &flagStorageDriver},
		"sqlite-path":    {"storage.sqlite_path", &flagSQLitePath},
		"postgres-dsn":   {"storage.postgres_dsn", &flagPostgresDSN},
		"badger-dir":     {"storage.badger_dir", &flagBadgerDir},
		"log-level":      {"log.level", &flagLogLevel},
	}
	out := make(map[string]any)
	for name, b := range bindings {
		if cmd.Flags().Changed(name) {
			out[b.key] = *b.val
		}
	}
	return out
}

func openSubmitter(ctx context.Context, opts ...core.Option) (*core.Submitter, error) {
	conn, err := core.OpenConnection(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened", "driver", cfg.Storage.Driver)
	opts = append([]core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewSlogAuditRecorder(logger)),
	}, opts...)
	return core.NewSubmitter(conn, opts...), nil
}

func closeConnection(conn domain.Connection) {
	if err := conn.Close(); err != nil {
		logger.Warn("close store", slog.Any("error", err))
	}
}
