package main

import (
	"context"
	"fmt"
	"io"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/spf13/cobra"
)

// recurringOptions controls the recurring report.
type recurringOptions struct {
	AccountID string
	All       bool
	Replay    bool
}

func recurringCmd() *cobra.Command {
	var opts recurringOptions

	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "List recurring charges for an account",
		Long: `List the subscriptions and bills detected for an account.

By default only confirmed patterns are shown. Use --all to include candidates
that have not yet repeated often enough and patterns that went inactive.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return showRecurring(ctx, a, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.AccountID, "account", "", "Account to report on (required)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Include candidate and inactive patterns")
	cmd.Flags().BoolVar(&opts.Replay, "replay", false, "Replay stored classifications through detection first")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func showRecurring(ctx context.Context, a *app, opts recurringOptions, w io.Writer) error {
	if opts.Replay {
		if err := replayClassifications(ctx, a, opts.AccountID); err != nil {
			return err
		}
	}

	patterns, err := a.engine.DetectRecurring(ctx, opts.AccountID)
	if err != nil {
		return err
	}
	if !opts.All {
		patterns = confirmedOnly(patterns)
	}
	return cli.RenderPatterns(w, patterns)
}

// replayClassifications feeds an account's stored classifications into the
// detector and saves the result. Occurrences the detector already holds are
// ignored, so replaying twice changes nothing.
func replayClassifications(ctx context.Context, a *app, accountID string) error {
	classified, err := a.store.GetClassifications(ctx, service.TransactionFilter{AccountID: accountID})
	if err != nil {
		return fmt.Errorf("failed to load classifications: %w", err)
	}

	updated := a.engine.Observe(ctx, classified)
	a.logger.Info("Replayed classifications",
		"account", accountID,
		"transactions", len(classified),
		"patterns_updated", updated)

	_, err = a.savePatterns(ctx)
	return err
}

func confirmedOnly(patterns []model.RecurringPattern) []model.RecurringPattern {
	out := patterns[:0:0]
	for _, p := range patterns {
		if p.Status == model.StatusConfirmed {
			out = append(out, p)
		}
	}
	return out
}
