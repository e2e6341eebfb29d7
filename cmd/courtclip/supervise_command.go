package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"courtclip/internal/notifications"
	"courtclip/internal/orchestrator"
	"courtclip/internal/supervisor"
)

func newSuperviseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Trigger finishing runs and refresh indexes while cameras are live",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			stopTelemetry, err := ctx.startTelemetry(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stopTelemetry()

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			metrics := ctx.ensureMetrics()
			sup, err := supervisor.New(cfg, supervisor.Deps{
				Heartbeats:   newHeartbeatStore(cfg, store, logger),
				Orchestrator: orchestrator.New(cfg, store, logger),
				Publisher:    newPublisher(cfg, store, metrics, logger),
				Notifier:     notifications.NewService(cfg),
				Metrics:      metrics,
				Logger:       logger,
			})
			if err != nil {
				return err
			}
			reason, err := sup.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Supervisor stopped: %s\n", reason)
			return nil
		},
	}
}
