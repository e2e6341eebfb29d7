package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"courtclip/internal/config"
	"courtclip/internal/finishing"
	"courtclip/internal/preflight"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var overrides config.Overrides

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Finish one batch of inbound clips",
		Long: "Plan a batch from the inbound folder, then brand, splice and publish each clip.\n" +
			"The command fails only when every selected clip failed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg, err := base.WithOverrides(overrides)
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				parts := make([]string, 0, len(failed))
				for _, r := range failed {
					parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
				}
				return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
			}

			stopTelemetry, err := ctx.startTelemetry(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stopTelemetry()

			runner, closeRunner, err := newRunner(cmd.Context(), cfg, ctx.ensureMetrics(), logger)
			if err != nil {
				return err
			}
			defer closeRunner()

			summary, runErr := runner.Run(cmd.Context())
			if errors.Is(runErr, finishing.ErrRunInProgress) {
				fmt.Fprintln(cmd.OutOrStdout(), "Another finishing run holds the lock; nothing to do")
				return nil
			}
			out := cmd.OutOrStdout()
			if len(summary.Results) == 0 && runErr == nil {
				fmt.Fprintln(out, "No clips to finish")
				return nil
			}
			fmt.Fprintln(out, renderResults(summary.Results))
			fmt.Fprintf(out, "Run %s: %d finished, %d failed, %d skipped in %s\n",
				summary.RunID, summary.Tally.OK, summary.Tally.Failed, summary.Skipped(), formatDuration(summary.Duration))
			if deferred := len(summary.Plan.Deferred); deferred > 0 {
				fmt.Fprintf(out, "%d clips remain for the next run\n", deferred)
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&overrides.SingleFile, "file", "", "Process exactly this inbound clip")
	cmd.Flags().BoolVar(&overrides.DryRun, "dry-run", false, "Use the local filesystem instead of object storage")
	cmd.Flags().StringVar(&overrides.Order, "order", "", "Batch order: newest-first or oldest-first")
	cmd.Flags().IntVar(&overrides.BatchLimit, "limit", 0, "Maximum clips in this batch")
	cmd.Flags().IntVar(&overrides.MaxParallel, "parallel", 0, "Clips finished concurrently")
	return cmd
}

func renderResults(results []finishing.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		detail := ""
		switch {
		case r.Err != nil:
			detail = r.Err.Error()
		case r.Warning != nil:
			detail = r.Warning.Error()
		case r.Skipped:
			detail = "already published"
		}
		rows = append(rows, []string{r.Filename, string(r.Status), r.Stage, formatDuration(r.Duration), detail})
	}
	return renderTable(
		[]string{"Clip", "Status", "Stage", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
