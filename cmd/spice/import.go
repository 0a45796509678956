package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/ofx"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
	"github.com/spf13/cobra"
)

func importCmd() *cobra.Command {
	var (
		accountID    string
		listAccounts bool
	)

	cmd := &cobra.Command{
		Use:   "import <file.ofx> [file.ofx...]",
		Short: "Import transactions from OFX/QFX files",
		Long: `Import bank and credit card transactions from OFX or QFX statement files.

Transactions already in the database are skipped, so re-importing an
overlapping statement is safe.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if listAccounts {
				return printAccounts(ctx, ofx.NewParser(logger), args, cmd.OutOrStdout())
			}

			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			parser := ofx.NewParser(logger)
			parser.AccountID = accountID
			return importFiles(ctx, store, parser, args, cmd.OutOrStdout(), logger)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Override the account id recorded in the files")
	cmd.Flags().BoolVar(&listAccounts, "list-accounts", false, "Print the accounts in each file without importing")
	return cmd
}

// importResult counts what one file contributed.
type importResult struct {
	File     string
	Parsed   int
	Inserted int
}

func importFiles(ctx context.Context, store *storage.SQLiteStorage, parser *ofx.Parser, paths []string, w io.Writer, logger *slog.Logger) error {
	var totalParsed, totalInserted int
	for _, path := range paths {
		result, err := importFile(ctx, store, parser, path, logger)
		if err != nil {
			return err
		}
		common.LogInfo(logger, "Imported OFX file", common.Fields{
			"file":     result.File,
			"parsed":   result.Parsed,
			"inserted": result.Inserted,
		})

		totalParsed += result.Parsed
		totalInserted += result.Inserted
		fmt.Fprintf(w, "%s: %d transactions, %d new\n", result.File, result.Parsed, result.Inserted)
	}

	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Imported %d new transactions (%d duplicates skipped)",
		totalInserted, totalParsed-totalInserted)))
	return nil
}

func printAccounts(ctx context.Context, parser *ofx.Parser, paths []string, w io.Writer) error {
	for _, path := range paths {
		f, err := os.Open(path) //nolint:gosec // user-supplied statement file
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		accounts, err := parser.Accounts(ctx, f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		fmt.Fprintf(w, "%s: %s\n", path, strings.Join(accounts, ", "))
	}
	return nil
}

func importFile(ctx context.Context, store *storage.SQLiteStorage, parser *ofx.Parser, path string, logger *slog.Logger) (importResult, error) {
	f, err := os.Open(path) //nolint:gosec // user-supplied statement file
	if err != nil {
		return importResult{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	txns, err := parser.ParseFile(ctx, f)
	if err != nil {
		return importResult{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	storable := make([]model.Transaction, 0, len(txns))
	for _, txn := range txns {
		if strings.TrimSpace(txn.RawMerchant) == "" {
			logger.Warn("Skipping transaction without merchant", "file", path, "id", txn.ID)
			continue
		}
		storable = append(storable, txn)
	}

	result := importResult{File: path, Parsed: len(storable)}
	if len(storable) == 0 {
		return result, nil
	}
	result.Inserted, err = store.SaveTransactions(ctx, storable)
	if err != nil {
		return importResult{}, fmt.Errorf("failed to save transactions from %s: %w", path, err)
	}
	return result, nil
}
