package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/igorvidecnik/databox-integration/internal/record"
	"github.com/igorvidecnik/databox-integration/internal/store"
)

var (
	tokAccess    string
	tokRefresh   string
	tokExpiresAt string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage stored OAuth tokens",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set PROVIDER",
	Short: "Store tokens obtained from the provider's authorization flow",
	Long: `Seed the token table after completing the provider's OAuth authorization
outside this tool. Later runs refresh and rotate the token automatically.`,
	Args: cobra.ExactArgs(1),
	RunE: runTokenSet,
}

func init() {
	tokenSetCmd.Flags().StringVar(&tokAccess, "access", "", "access token")
	tokenSetCmd.Flags().StringVar(&tokRefresh, "refresh", "", "refresh token")
	tokenSetCmd.Flags().StringVar(&tokExpiresAt, "expires-at", "", "expiry as RFC 3339 or unix seconds (default: already expired)")
	_ = tokenSetCmd.MarkFlagRequired("refresh")
	tokenCmd.AddCommand(tokenSetCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	provider := args[0]
	if provider != record.ProviderStrava {
		return fmt.Errorf("provider %q does not use OAuth", provider)
	}

	expiresAt, err := parseExpiry(tokExpiresAt)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Storage.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	if err := s.SaveToken(context.Background(), store.Token{
		Provider:     provider,
		AccessToken:  tokAccess,
		RefreshToken: tokRefresh,
		ExpiresAt:    expiresAt,
	}); err != nil {
		return err
	}

	slog.Info("token stored", "provider", provider, "expires_at", expiresAt)
	return nil
}

// parseExpiry accepts RFC 3339 or unix seconds, the form the token endpoint
// returns. An empty value yields the epoch so the first use refreshes; a zero
// time would mean the token never expires.
func parseExpiry(s string) (time.Time, error) {
	if s == "" {
		return time.Unix(0, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if secs, err := cast.ToInt64E(s); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid --expires-at %q: want RFC 3339 or unix seconds", s)
}
