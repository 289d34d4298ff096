package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
)

var runCmd = &cobra.Command{
	Use:   "run [FROM TO]",
	Short: "Run the pipeline once for every enabled provider (default command)",
	Long: `Fetch, aggregate and push one record per day for [FROM, TO] (YYYY-MM-DD,
inclusive). Without dates the last 30 days up to today are processed.`,
	Args: runArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runArgs accepts either no dates or both, and rejects malformed dates before
// any config, state or network access.
func runArgs(cmd *cobra.Command, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 2:
		return daterange.Validate(args[0], args[1])
	default:
		return fmt.Errorf("expected zero or two dates (FROM TO), got %d argument(s)", len(args))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	var from, to string
	if len(args) == 2 {
		from, to = args[0], args[1]
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := a.runner.Run(ctx, from, to)
	printReport(cmd.OutOrStdout(), report)
	return err
}
