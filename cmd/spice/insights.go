package main

import (
	"context"
	"io"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/spf13/cobra"
)

func insightsCmd() *cobra.Command {
	var accountID string

	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize subscription costs and flags",
		Long: `Estimate the monthly cost of every confirmed recurring charge and flag
price increases and charges that stopped arriving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return showInsights(ctx, a, accountID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account to report on (required)")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func showInsights(ctx context.Context, a *app, accountID string, w io.Writer) error {
	insights, err := a.engine.GenerateInsights(ctx, accountID)
	if err != nil {
		return err
	}
	return cli.RenderInsights(w, insights)
}
