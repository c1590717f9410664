package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/infrastructure/migration"
)

// ErrMigrateSQLite is returned when migrations are run against a sqlite database
var ErrMigrateSQLite = errors.New("migrations target postgres; sqlite schemas are created by serve")

// NewMigrateCommand creates the migrate command and its subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL schema",
		Long: `Apply or roll back the embedded PostgreSQL migrations.

Example:
  manufacture migrate up
  manufacture migrate steps -- -1
  manufacture migrate force 3`,
	}

	cmd.AddCommand(
		migrateCommand(rootOpts, "up", "Apply all pending migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ []string, _ io.Writer) error { return m.Up() }),
		migrateCommand(rootOpts, "down", "Roll back all migrations", cobra.NoArgs,
			func(m *migration.Migrator, _ []string, _ io.Writer) error { return m.Down() }),
		migrateCommand(rootOpts, "steps <n>", "Apply n migrations (negative rolls back)", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string, _ io.Writer) error {
				n, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				return m.Steps(n)
			}),
		migrateCommand(rootOpts, "force <version>", "Set the version without running migrations", cobra.ExactArgs(1),
			func(m *migration.Migrator, args []string, _ io.Writer) error {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < -1 {
					return fmt.Errorf("invalid version %q", args[0])
				}
				return m.Force(v)
			}),
		migrateCommand(rootOpts, "version", "Print the current version", cobra.NoArgs,
			func(m *migration.Migrator, _ []string, out io.Writer) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "version %d (dirty: %t)\n", version, dirty)
				return err
			}),
		newMigrateListCommand(),
	)

	return cmd
}

func newMigrateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the embedded migrations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := migration.Available()
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type migrateFunc func(m *migration.Migrator, args []string, out io.Writer) error

func migrateCommand(rootOpts *RootOptions, use, short string, args cobra.PositionalArgs, run migrateFunc) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, args, cmd.OutOrStdout(), run)
		},
	}
}

func runMigrate(opts *RootOptions, args []string, out io.Writer, run migrateFunc) error {
	cfg, log, err := opts.setup()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	if cfg.Database.IsSQLite() {
		return ErrMigrateSQLite
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	m, err := migration.New(db, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	return run(m, args, out)
}

func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid step count %q: must be a non-zero integer", s)
	}
	return n, nil
}
