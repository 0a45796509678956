package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/pattern"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var status, vacuum bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply pending database migrations and seed the built-in category rules
into an empty rule table.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := connectStorage(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if status {
				return migrationStatus(ctx, store, cmd.OutOrStdout())
			}
			if err := migrateAndSeed(ctx, store, cmd.OutOrStdout()); err != nil {
				return err
			}
			if vacuum {
				if err := store.Vacuum(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database compacted"))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "Show migration status only")
	cmd.Flags().BoolVar(&vacuum, "vacuum", false, "Compact the database file after migrating")
	return cmd
}

func migrationStatus(ctx context.Context, store *storage.SQLiteStorage, w io.Writer) error {
	version, err := store.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	fmt.Fprintf(w, "Database: %s\n", store.Path())
	fmt.Fprintf(w, "Schema version: %d (expected %d)\n", version, storage.ExpectedSchemaVersion)
	if version < storage.ExpectedSchemaVersion {
		fmt.Fprintln(w, cli.FormatWarning("Migrations pending"))
		return nil
	}
	fmt.Fprintln(w, cli.FormatSuccess("Database is up to date"))
	return nil
}

func migrateAndSeed(ctx context.Context, store *storage.SQLiteStorage, w io.Writer) error {
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	seeded, err := store.SeedRules(ctx, pattern.DefaultRules())
	if err != nil {
		return fmt.Errorf("failed to seed rules: %w", err)
	}

	fmt.Fprintln(w, cli.FormatSuccess("Database migrated"))
	if seeded > 0 {
		fmt.Fprintln(w, cli.FormatInfo(fmt.Sprintf("Seeded %d built-in category rules", seeded)))
	}
	return nil
}
