package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the database holds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return showStatus(ctx, store, cmd.OutOrStdout())
		},
	}
}

func showStatus(ctx context.Context, store *storage.SQLiteStorage, w io.Writer) error {
	total, err := store.CountTransactions(ctx)
	if err != nil {
		return err
	}
	bySource, err := store.ClassificationStats(ctx)
	if err != nil {
		return err
	}
	rejected, err := store.CountRejections(ctx)
	if err != nil {
		return err
	}
	rules, err := store.LoadRules(ctx)
	if err != nil {
		return err
	}
	patterns, err := store.LoadPatterns(ctx)
	if err != nil {
		return err
	}

	classified := 0
	for _, n := range bySource {
		classified += n
	}
	byStatus := make(map[model.PatternStatus]int)
	for _, p := range patterns {
		byStatus[p.Status]++
	}

	lines := []string{
		fmt.Sprintf("Database:        %s", store.Path()),
		fmt.Sprintf("Transactions:    %d (%d pending)", total, total-classified-rejected),
		fmt.Sprintf("Rejected:        %d", rejected),
		fmt.Sprintf("Classified:      rule=%d cache=%d fallback=%d none=%d",
			bySource[model.SourceRule], bySource[model.SourceCache], bySource[model.SourceFallback], bySource[model.SourceNone]),
		fmt.Sprintf("Category rules:  %d stored", len(rules)),
		fmt.Sprintf("Recurring:       %d confirmed, %d candidate, %d inactive",
			byStatus[model.StatusConfirmed], byStatus[model.StatusCandidate], byStatus[model.StatusInactive]),
	}
	_, err = fmt.Fprintln(w, cli.RenderBox(cli.SpiceIcon+" Status", strings.Join(lines, "\n")))
	return err
}
