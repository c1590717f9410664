// Package cli holds the cobra commands of the manufacture binary.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/infrastructure/config"
	"github.com/erp/manufacture/internal/infrastructure/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	// LogLevel overrides log.level from the configuration when set
	LogLevel string

	// loadConfig allows overriding configuration loading (for testing).
	loadConfig func() (*config.Config, error)
}

// NewRootCommand creates the root command of the manufacture binary.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{loadConfig: config.Load}

	cmd := &cobra.Command{
		Use:   "manufacture",
		Short: "Wildberries marketplace sync and replenishment service",
		Long: `Pulls orders and stocks of every configured Wildberries seller account into
the ledger, ranks products by replenishment urgency and packs the orders of
completed production batches into supplies.

Configuration is read from config.toml (., ./config, /app) and WBM_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))

	return cmd
}

// setup loads the configuration and builds the logger every command starts from
func (o *RootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log.Named(cfg.App.Name), nil
}
