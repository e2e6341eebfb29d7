package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtclip/internal/orchestrator"
	"courtclip/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var skipRemote bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, branding assets, binaries, storage and the orchestrator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			results := preflight.RunAll(cmd.Context(), cfg)
			if !skipRemote {
				store, err := openStore(cfg)
				if err != nil {
					results = append(results, preflight.Result{Name: "Storage", Detail: err.Error()})
				} else {
					results = append(results, preflight.CheckStorage(cmd.Context(), store, cfg.Storage.InboundPrefix))
				}
				results = append(results, preflight.CheckOrchestrator(cmd.Context(), orchestrator.New(cfg, store, logger)))
			}

			rows := make([][]string, 0, len(results))
			for _, r := range results {
				status := "ok"
				if !r.Passed {
					status = "FAIL"
				}
				rows = append(rows, []string{r.Name, status, r.Detail})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Check", "Status", "Detail"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft},
			))
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d checks failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipRemote, "local", false, "Skip the storage and orchestrator checks")
	return cmd
}
