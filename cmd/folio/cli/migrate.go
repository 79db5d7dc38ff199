package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  "Apply, roll back or inspect schema migrations. serve applies pending migrations on start.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st migrator) error {
				if err := st.Migrate(); err != nil {
					return err
				}
				return printVersion(cmd, st)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid step count %q", args[0])
				}
				steps = n
			}
			return withStore(func(st migrator) error {
				if err := st.MigrateDown(steps); err != nil {
					return err
				}
				return printVersion(cmd, st)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(st migrator) error {
				return printVersion(cmd, st)
			})
		},
	})

	return cmd
}

type migrator interface {
	Migrate() error
	MigrateDown(steps int) error
	MigrationVersion() (uint, bool, error)
}

// withStore opens the store without migrating and runs fn against it.
func withStore(fn func(st migrator) error) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := openStore(ctx, s, nil, true, newLogger(s))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func printVersion(cmd *cobra.Command, st migrator) error {
	v, dirty, err := st.MigrationVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return nil
}
