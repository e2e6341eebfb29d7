package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtclip/internal/clipstats"
	"courtclip/internal/dedup"
)

func newMetricsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Append new archive clips to the clip log and rebuild the stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			registry, err := dedup.Open(cmd.Context(), cfg, store, logger)
			if err != nil {
				return err
			}
			defer registry.Close()

			opts, err := clipstats.OptionsFromConfig(cfg)
			if err != nil {
				return err
			}
			report, err := clipstats.NewCollector(store, registry, opts, logger).Collect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archive clips: %d, new rows: %d, log rows: %d\n",
				report.Archived, report.Added, report.Rows)
			return nil
		},
	}
}
