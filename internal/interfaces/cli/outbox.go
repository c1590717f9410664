package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/erp/manufacture/internal/domain/shared"
	"github.com/erp/manufacture/internal/infrastructure/persistence"
)

// NewOutboxCommand creates the outbox command and its subcommands.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the event outbox",
		Long: `Inspect the events committed by the batch repository and not yet, or never,
handed to the event bus.

Example:
  manufacture outbox status`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "status",
		Short:         "Print the number of outbox entries per status",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxStatus(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	})

	return cmd
}

func runOutboxStatus(ctx context.Context, opts *RootOptions, out io.Writer) error {
	cfg, log, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	counts, err := persistence.NewGormOutboxRepository(db.DB).CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count outbox entries: %w", err)
	}
	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusFailed,
		shared.OutboxStatusSent,
		shared.OutboxStatusDead,
	} {
		if _, err := fmt.Fprintf(out, "%-8s %d\n", status, counts[status]); err != nil {
			return err
		}
	}
	return nil
}
