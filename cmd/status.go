package cmd

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/igorvidecnik/databox-integration/internal/api"
)

var statusServer string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query the health endpoint of a running databox-integration instance",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusServer, "server", "http://localhost:8080", "databox-integration server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
	resp, err := client.Get(statusServer + "/api/v1/health")
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", statusServer, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var health api.HealthResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&health); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	out := cmd.OutOrStdout()
	writeHealth(out, &health)

	if health.Status == "unhealthy" {
		return fmt.Errorf("server reports %s", health.Status)
	}
	return nil
}

// writeHealth renders a health response for humans.
func writeHealth(out io.Writer, health *api.HealthResponse) {
	fmt.Fprintf(out, "databox-integration %s\n", health.Version)
	fmt.Fprintf(out, "Status: %s\n", health.Status)
	fmt.Fprintf(out, "Uptime: %s\n", health.Uptime)
	fmt.Fprintln(out)

	if len(health.Providers) > 0 {
		fmt.Fprintln(out, "Providers:")
		for _, p := range health.Providers {
			fmt.Fprintf(out, "  %s\n", p.Provider)
			if p.LastSuccessfulDate != nil {
				fmt.Fprintf(out, "    Last successful date: %s\n", *p.LastSuccessfulDate)
			} else {
				fmt.Fprintln(out, "    Last successful date: none")
			}
			if p.LastRunAt != nil {
				fmt.Fprintf(out, "    Last run: %s (%s ago)\n",
					p.LastRunAt.Format(time.RFC3339), time.Since(*p.LastRunAt).Round(time.Second))
			}
			if p.LastRunState != "" {
				fmt.Fprintf(out, "    State: %s\n", p.LastRunState)
			}
			if p.LastRunError != "" {
				fmt.Fprintf(out, "    Error: %s\n", p.LastRunError)
			}
		}
		fmt.Fprintln(out)
	}

	if health.LastRun != nil {
		fmt.Fprintf(out, "Last run: %s (started %s)\n", health.LastRun.RunID, health.LastRun.StartedAt.Format(time.RFC3339))
	}

	fmt.Fprintf(out, "Database: %s (%s)\n", health.Database.Driver, health.Database.Status)
	if health.Database.SizeBytes > 0 {
		fmt.Fprintf(out, "  Size: %s\n", formatBytes(health.Database.SizeBytes))
	}
}

func formatBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
