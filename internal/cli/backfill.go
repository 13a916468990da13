package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"insider-alerts/internal/app"
)

var (
	backfillFromBlock uint64
	backfillToBlock   uint64
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Scan a historical block range into the audit store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFromBlock == 0 || backfillToBlock == 0 {
			return fmt.Errorf("--from-block and --to-block must be provided")
		}
		if backfillFromBlock > backfillToBlock {
			return fmt.Errorf("--from-block must not exceed --to-block")
		}

		opts := app.BackfillOptions{
			FromBlock: backfillFromBlock,
			ToBlock:   backfillToBlock,
			DryRun:    backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().Uint64Var(&backfillFromBlock, "from-block", 0, "First block of the range (inclusive)")
	backfillCmd.Flags().Uint64Var(&backfillToBlock, "to-block", 0, "Last block of the range (inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Log qualifying fills without writing to storage")
}
