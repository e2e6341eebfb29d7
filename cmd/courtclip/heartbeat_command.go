package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"courtclip/internal/assetname"
)

func newHeartbeatCommand(ctx *commandContext) *cobra.Command {
	var device string
	var cell assetname.Cell

	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Record a device heartbeat",
		RunE: func(cmd *cobra.Command, args []string) error {
			device = strings.TrimSpace(device)
			if device == "" || !cell.Valid() {
				return errors.New("--device, --loc, --can and --lado are required")
			}
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
			now := time.Now()
			reg, err := newHeartbeatStore(cfg, store, logger).Beat(cmd.Context(), device, cell, now)
			if err != nil {
				return err
			}
			live := reg.Live(now, cfg.HeartbeatTTL())
			fmt.Fprintf(cmd.OutOrStdout(), "Heartbeat recorded for %s (%d beats); %d live cells\n",
				device, reg.Devices[device].Beats, len(live))
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "Device identifier")
	cmd.Flags().StringVar(&cell.Venue, "loc", "", "Venue")
	cmd.Flags().StringVar(&cell.Court, "can", "", "Court")
	cmd.Flags().StringVar(&cell.Side, "lado", "", "Side")
	return cmd
}
