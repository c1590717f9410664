package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sync workers and the HTTP API",
		Long: `Run the service: the interval trigger submits sync jobs for every active
account, the event bus delivers batch completions to the supply opener and the
completion orchestrator, and the HTTP API serves replenishment rankings.

The process stops gracefully on SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, log, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting service",
		zap.String("env", cfg.App.Env),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Bool("sync", cfg.Sync.Enabled),
		zap.Int("accounts", len(cfg.Marketplace.Accounts)),
	)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		_ = app.Shutdown(context.Background())
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Serve()
	}()

	select {
	case err = <-serveErr:
		log.Error("Server stopped unexpectedly", zap.Error(err))
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	if shutdownErr := app.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
		log.Error("Shutdown finished with errors", zap.Error(shutdownErr))
		if err == nil {
			err = shutdownErr
		}
	} else {
		log.Info("Service stopped")
	}
	return err
}
