package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courtclip/internal/ledger"
	"courtclip/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent finishing outcomes and staging usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			led, err := ledger.Open(cmd.Context(), cfg.LedgerPath())
			if err != nil {
				return err
			}
			defer led.Close()

			out := cmd.OutOrStdout()
			counts, err := led.StatusCounts(cmd.Context(), time.Now().Add(-24*time.Hour))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Last 24h: %s\n", formatCounts(counts))

			outcomes, err := led.Latest(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Fprintln(out, "No finishing outcomes recorded")
			} else {
				fmt.Fprintln(out, renderOutcomes(outcomes))
			}

			runs, err := staging.ListRuns(cfg.Paths.StagingDir)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "Staging is empty")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{run.RunID, run.Modified.Local().Format("2006-01-02 15:04"), fmt.Sprint(run.Jobs), formatBytes(run.Bytes)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Staging run", "Modified", "Jobs", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of outcomes to show")
	return cmd
}

func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "no outcomes"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

func renderOutcomes(outcomes []ledger.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		detail := o.Error
		if detail == "" {
			detail = o.Warning
		}
		if detail == "" && o.Skipped {
			detail = "already published"
		}
		rows = append(rows, []string{
			o.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			o.Asset,
			o.Status,
			o.Stage,
			formatDuration(o.Duration),
			detail,
		})
	}
	return renderTable(
		[]string{"Finished", "Clip", "Status", "Stage", "Duration", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
