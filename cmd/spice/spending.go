package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/insight"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
	"github.com/spf13/cobra"
)

// spendingOptions selects the analysis window.
type spendingOptions struct {
	AsOf      time.Time
	AccountID string
	Period    string
}

func spendingCmd() *cobra.Command {
	var (
		opts spendingOptions
		asOf string
	)

	cmd := &cobra.Command{
		Use:   "spending",
		Short: "Analyze spending by category",
		Long: `Break down debit spending for a period by category and merchant, and flag
categories that moved sharply compared with the period before.

Periods are written as 30d, 4w, 3m or 1y.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.AsOf = time.Now()
			if asOf != "" {
				parsed, err := time.Parse(time.DateOnly, asOf)
				if err != nil {
					return common.NewUserError("--as-of must be a date like 2024-06-30", err)
				}
				opts.AsOf = parsed
			}

			ctx := cmd.Context()
			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return showSpending(ctx, store, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.AccountID, "account", "", "Restrict to one account")
	cmd.Flags().StringVar(&opts.Period, "period", "30d", "Length of the analysis window")
	cmd.Flags().StringVar(&asOf, "as-of", "", "Last day of the window (default today)")
	return cmd
}

// spendingWindows returns the inclusive current window ending on asOf and
// the equally long window before it.
func spendingWindows(asOf time.Time, days int) (current, previous service.TransactionFilter) {
	end := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(days - 1))
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -(days - 1))

	current = service.TransactionFilter{StartDate: &start, EndDate: &end}
	previous = service.TransactionFilter{StartDate: &prevStart, EndDate: &prevEnd}
	return current, previous
}

func showSpending(ctx context.Context, store *storage.SQLiteStorage, opts spendingOptions, w io.Writer) error {
	days, err := insight.ParsePeriod(opts.Period)
	if err != nil {
		return err
	}

	currentFilter, previousFilter := spendingWindows(opts.AsOf, days)
	currentFilter.AccountID = opts.AccountID
	previousFilter.AccountID = opts.AccountID

	current, err := store.GetClassifications(ctx, currentFilter)
	if err != nil {
		return fmt.Errorf("failed to load current period: %w", err)
	}
	previous, err := store.GetClassifications(ctx, previousFilter)
	if err != nil {
		return fmt.Errorf("failed to load previous period: %w", err)
	}

	return cli.RenderSpending(w, insight.AnalyzeSpending(current, previous, days))
}
