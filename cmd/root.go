package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/igorvidecnik/databox-integration/internal/config"
	"github.com/igorvidecnik/databox-integration/internal/logging"
)

var (
	cfgFile   string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "databox-integration [FROM TO]",
	Short: "Push daily Strava and Open-Meteo aggregates to Databox",
	Long: `databox-integration fetches Strava activities and Open-Meteo weather
history, aggregates them into one record per calendar day, and pushes the
records to Databox datasets in batches. Ingestion state is kept in SQLite or
PostgreSQL so every run is idempotent and its outcome inspectable.

Without a subcommand it behaves like "run".`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Make run the default command.
	rootCmd.Args = runArgs
	rootCmd.RunE = runRun

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (text or json)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs the process-wide logger. Before the config is loaded
// cfg is nil and only the --log-format flag applies.
func setupLogging(cfg *config.Config) {
	format := logFormat
	level := slog.LevelInfo
	var extra []string

	if cfg != nil {
		if !rootCmd.PersistentFlags().Changed("log-format") {
			format = cfg.LogFormat
		}
		level = logging.ParseLevel(cfg.LogLevel())
		extra = cfg.Logging.RedactKeys
	}

	slog.SetDefault(logging.New(os.Stderr, format, level, logging.NewRedactor(extra...)))
}

// loadConfig reads the config and reconfigures logging from it.
func loadConfig() (*config.Config, error) {
	setupLogging(nil)
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	setupLogging(cfg)
	return cfg, nil
}
