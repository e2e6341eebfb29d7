package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"courtclip/internal/assetname"
)

func newIndexCommand(ctx *commandContext) *cobra.Command {
	var cell assetname.Cell

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Regenerate the recency index of one cell",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cell.Valid() {
				return errors.New("--loc, --can and --lado are required")
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
			publisher := newPublisher(cfg, store, nil, logger)
			index, err := publisher.Publish(cmd.Context(), cell)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %d entries to %s/%s\n", len(index.Videos), publisher.Folder(cell), cfg.Index.FileName)
			return nil
		},
	}

	cmd.Flags().StringVar(&cell.Venue, "loc", "", "Venue")
	cmd.Flags().StringVar(&cell.Court, "can", "", "Court")
	cmd.Flags().StringVar(&cell.Side, "lado", "", "Side")
	return cmd
}
