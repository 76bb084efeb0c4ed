package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"brandhub.dev/demodata/internal/config"
	"brandhub.dev/demodata/internal/migrate"
	"brandhub.dev/demodata/internal/store/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Apply or inspect SQL schema migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status"},
	RunE:      runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver == config.DriverMemory {
		return fmt.Errorf("migrate: store driver %q has no schema", cfg.StoreDriver)
	}
	d, err := sqlstore.DialectFor(cfg.StoreDriver)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := sqlstore.Open(d, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	mgr, err := migrate.NewManager(db, d.Name)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Fprintln(cmd.OutOrStdout(), item)
		}
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", args[0], err)
	}
	return nil
}
