package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

const defaultBatchSize = 500

// classifyOptions controls one classify run.
type classifyOptions struct {
	MetricsFile string
	Limit       int
	BatchSize   int
	All         bool
}

func classifyCmd() *cobra.Command {
	var opts classifyOptions

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Categorize imported transactions",
		Long: `Categorize transactions that have not been classified yet.

Each transaction is matched against the category rules first, then the shared
merchant cache, then the LLM fallback when one is configured. Results feed
recurring charge detection. Batches are saved as they finish, so an
interrupted run resumes where it stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx, stop := handler.HandleInterrupts(cmd.Context(), "Progress saved; run spice classify again to resume")
			defer stop()

			a, err := newApp(ctx, settings, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			summary, err := classifyTransactions(ctx, a, opts, cmd.ErrOrStderr())
			if handler.WasInterrupted() {
				return nil
			}
			if err != nil {
				return err
			}
			return cli.RenderBatch(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of transactions to classify (0 = no limit)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", defaultBatchSize, "Transactions classified and saved per batch")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Reclassify transactions that already have a category")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the run")
	return cmd
}

// classifyTransactions processes pending transactions in batches, saving
// each batch before starting the next. Recurring patterns are persisted even
// when the run is cut short.
func classifyTransactions(ctx context.Context, a *app, opts classifyOptions, progress io.Writer) (cli.BatchSummary, error) {
	summary := cli.BatchSummary{BySource: make(map[model.Source]int)}

	txns, err := a.store.GetTransactions(ctx, service.TransactionFilter{
		Unclassified: !opts.All,
		Limit:        opts.Limit,
	})
	if err != nil {
		return summary, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		a.logger.Info("No transactions to classify")
		return summary, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	bar := progressbar.NewOptions(len(txns),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Classifying"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)

	a.logger.Info("Starting classification",
		"transactions", len(txns),
		"batch_size", batchSize,
		"reclassify", opts.All)

	runErr := processBatches(ctx, a, txns, batchSize, &summary, func(n int) {
		_ = bar.Add(n)
	})
	_ = bar.Finish()
	if runErr != nil {
		common.LogError(a.logger, runErr, "Classification run stopped", common.Fields{
			"run_id":      summary.RunID,
			"categorized": summary.Categorized,
			"remaining":   len(txns) - summary.Categorized - summary.Rejected,
		})
	}

	// Keep whatever the saved batches taught the detector.
	saveCtx := context.WithoutCancel(ctx)
	a.engine.Detector().Sweep(a.now())
	snapshot, err := a.savePatterns(saveCtx)
	if err != nil {
		return summary, errors.Join(runErr, err)
	}

	a.recorder.ObserveCache(a.cache.Stats(), a.cache.Len())
	a.recorder.ObservePatterns(snapshot)
	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, a.registry); err != nil {
			return summary, errors.Join(runErr, fmt.Errorf("failed to write metrics: %w", err))
		}
	}

	return summary, runErr
}

func processBatches(ctx context.Context, a *app, txns []model.Transaction, batchSize int, summary *cli.BatchSummary, advance func(int)) error {
	for start := 0; start < len(txns); start += batchSize {
		end := min(start+batchSize, len(txns))

		result, err := a.engine.Process(ctx, txns[start:end])
		if err != nil {
			return fmt.Errorf("classification failed: %w", err)
		}
		if len(result.Categorized) > 0 {
			if err := a.store.SaveClassifications(ctx, result.Categorized); err != nil {
				return fmt.Errorf("failed to save classifications: %w", err)
			}
		}
		if err := a.store.SaveRejections(ctx, result.RunID, result.Rejected, a.now()); err != nil {
			return fmt.Errorf("failed to save rejections: %w", err)
		}

		if summary.RunID == "" {
			summary.RunID = result.RunID
		}
		summary.Categorized += len(result.Categorized)
		summary.Rejected += len(result.Rejected)
		summary.PatternsUpdated += result.PatternsUpdated
		for _, ct := range result.Categorized {
			summary.BySource[ct.Source]++
		}

		a.logger.Debug("Saved classification batch",
			"run_id", result.RunID,
			"categorized", len(result.Categorized),
			"rejected", len(result.Rejected))
		advance(end - start)
	}
	return nil
}
