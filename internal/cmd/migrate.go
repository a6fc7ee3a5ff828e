package cmd

import (
	"fmt"

	"github.com/Freeeeeet/tutor_bot/internal/app"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateUp,
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrateStatus,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}

func newMigrator(cmd *cobra.Command) (*runtime, *app.Migrator, error) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return nil, nil, err
	}

	migrator, err := app.NewMigrator(rt.pool, rt.cfg.MigrationsDir, rt.logger)
	if err != nil {
		rt.Close()
		return nil, nil, err
	}
	return rt, migrator, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	rt, migrator, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer migrator.Close()

	return migrator.Run(cmd.Context())
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	rt, migrator, err := newMigrator(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer migrator.Close()

	states, err := migrator.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		fmt.Fprintf(out, "%-8s %05d  %s\n", mark, s.Version, s.Source)
	}
	return nil
}
