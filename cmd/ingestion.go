package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/igorvidecnik/databox-integration/internal/sink"
)

var ingestionCmd = &cobra.Command{
	Use:   "ingestion PROVIDER INGESTION_ID",
	Short: "Look up the status of an ingestion in the provider's dataset",
	Args:  cobra.ExactArgs(2),
	RunE:  runIngestion,
}

func init() {
	rootCmd.AddCommand(ingestionCmd)
}

func runIngestion(cmd *cobra.Command, args []string) error {
	provider, ingestionID := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	datasetID, err := datasetFor(cfg, provider)
	if err != nil {
		return err
	}

	client, err := sink.NewClient(cfg.Sink.BaseURL, cfg.Sink.APIKey, &http.Client{Timeout: cfg.HTTPTimeout}, slog.Default())
	if err != nil {
		return err
	}

	status, err := client.IngestionStatus(context.Background(), datasetID, ingestionID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
