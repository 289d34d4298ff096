package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
)

var (
	bfProvider string
	bfFrom     string
	bfTo       string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-push a date range for a single provider",
	Long: `Backfill runs the pipeline for one provider only. Records for days already
pushed are sent again; the sink replaces them by date.`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().StringVar(&bfProvider, "provider", "", "provider to backfill (strava or openmeteo)")
	backfillCmd.Flags().StringVar(&bfFrom, "from", "", "start date (YYYY-MM-DD)")
	backfillCmd.Flags().StringVar(&bfTo, "to", "", "end date (YYYY-MM-DD, default: today)")
	_ = backfillCmd.MarkFlagRequired("provider")
	_ = backfillCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if err := daterange.Validate(bfFrom, bfTo); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	// Support context cancellation via signals.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("backfilling provider", "provider", bfProvider, "from", bfFrom, "to", bfTo)

	report, err := a.runner.RunProvider(ctx, bfProvider, bfFrom, bfTo)
	printReport(cmd.OutOrStdout(), report)
	return err
}
