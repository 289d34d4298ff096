// Package oauth keeps provider access tokens fresh, persisting every
// rotation back to the store.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/oauth2"

	"github.com/igorvidecnik/databox-integration/internal/store"
)

// StravaTokenURL is Strava's token exchange and refresh endpoint.
const StravaTokenURL = "https://www.strava.com/oauth/token"

// ErrNoToken is returned when no token has been stored for the provider.
var ErrNoToken = errors.New("no oauth token stored")

// TokenStore is the subset of store.Store the token source needs.
type TokenStore interface {
	GetToken(ctx context.Context, provider string) (*store.Token, error)
	SaveToken(ctx context.Context, tok store.Token) error
}

// Config describes a provider's OAuth client.
type Config struct {
	Provider     string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Source hands out valid access tokens for one provider.
type Source struct {
	provider   string
	cfg        *oauth2.Config
	store      TokenStore
	httpClient *http.Client
	logger     *slog.Logger

	mu sync.Mutex
}

// NewSource creates a token source. A nil httpClient uses the default client.
func NewSource(cfg Config, ts TokenStore, httpClient *http.Client, logger *slog.Logger) *Source {
	if cfg.TokenURL == "" {
		cfg.TokenURL = StravaTokenURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		provider: cfg.Provider,
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:      ts,
		httpClient: httpClient,
		logger:     logger,
	}
}

// AccessToken returns a valid access token, refreshing it when it is expired
// or about to expire. A refreshed token is saved before it is returned.
func (s *Source) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.GetToken(ctx, s.provider)
	if err != nil {
		return "", fmt.Errorf("loading %s token: %w", s.provider, err)
	}
	if stored == nil {
		return "", fmt.Errorf("%w for %s", ErrNoToken, s.provider)
	}

	current := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       stored.ExpiresAt,
	}

	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}
	tok, err := s.cfg.TokenSource(ctx, current).Token()
	if err != nil {
		return "", fmt.Errorf("refreshing %s token: %w", s.provider, err)
	}

	if tok.AccessToken != current.AccessToken || tok.RefreshToken != current.RefreshToken {
		refresh := tok.RefreshToken
		if refresh == "" {
			refresh = current.RefreshToken
		}
		if err := s.store.SaveToken(ctx, store.Token{
			Provider:     s.provider,
			AccessToken:  tok.AccessToken,
			RefreshToken: refresh,
			ExpiresAt:    tok.Expiry,
		}); err != nil {
			return "", fmt.Errorf("saving refreshed %s token: %w", s.provider, err)
		}
		s.logger.Info("oauth token refreshed", "provider", s.provider, "expires_at", tok.Expiry)
	}
	return tok.AccessToken, nil
}
