package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"courtclip/internal/finishing"
	"courtclip/internal/logging"
	"courtclip/internal/orchestrator"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume run requests from AMQP and finish a batch for each",
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
			broker, ok := orchestrator.New(cfg, store, logger).(*orchestrator.AMQP)
			if !ok {
				return fmt.Errorf("worker requires orchestrator.kind = %q", "amqp")
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

			return broker.Consume(cmd.Context(), func(reqCtx context.Context, req orchestrator.Request) error {
				summary, err := runner.Run(reqCtx)
				if errors.Is(err, finishing.ErrRunInProgress) {
					logging.WithContext(reqCtx, logger).Info("run request satisfied by the run already in progress")
					return nil
				}
				if err != nil {
					return err
				}
				logging.WithContext(reqCtx, logger).Info("run request handled",
					logging.String("run_id", summary.RunID),
					logging.Int("finished", summary.Tally.OK),
					logging.Int("failed", summary.Tally.Failed),
				)
				return nil
			})
		},
	}
}
