package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/igorvidecnik/databox-integration/internal/config"
	"github.com/igorvidecnik/databox-integration/internal/oauth"
	"github.com/igorvidecnik/databox-integration/internal/pipeline"
	"github.com/igorvidecnik/databox-integration/internal/record"
	"github.com/igorvidecnik/databox-integration/internal/sink"
	"github.com/igorvidecnik/databox-integration/internal/source/openmeteo"
	"github.com/igorvidecnik/databox-integration/internal/source/strava"
	"github.com/igorvidecnik/databox-integration/internal/store"
)

// app is everything a pipeline run needs, built from one config.
type app struct {
	cfg    *config.Config
	store  store.Store
	runner *pipeline.Runner
}

func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Storage.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	slog.Info("database ready", "driver", cfg.Storage.Driver)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	sk, err := sink.NewClient(cfg.Sink.BaseURL, cfg.Sink.APIKey, httpClient, slog.Default())
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	providers, err := buildProviders(cfg, s, httpClient)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		store:  s,
		runner: pipeline.NewRunner(s, sk, providers, slog.Default()),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// buildProviders returns the enabled providers in run order: activities
// first, then weather.
func buildProviders(cfg *config.Config, tokens oauth.TokenStore, httpClient *http.Client) ([]pipeline.Provider, error) {
	var providers []pipeline.Provider

	if sc := cfg.Providers.Strava; sc.Enabled {
		loc, err := time.LoadLocation(sc.Timezone)
		if err != nil {
			return nil, fmt.Errorf("strava timezone: %w", err)
		}
		ts := oauth.NewSource(oauth.Config{
			Provider:     record.ProviderStrava,
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			TokenURL:     sc.TokenURL,
		}, tokens, httpClient, slog.Default())

		client := strava.NewClient(strava.Config{
			BaseURL:  sc.BaseURL,
			Location: loc,
			Energy:   strava.EnergyModel{WeightKg: sc.WeightKg, AgeYears: float64(sc.Age)},
		}, ts, httpClient, slog.Default().With("provider", record.ProviderStrava))

		providers = append(providers, pipeline.Provider{DatasetID: sc.DatasetID, Source: client})
	}

	if oc := cfg.Providers.OpenMeteo; oc.Enabled {
		client, err := openmeteo.NewClient(openmeteo.Config{
			BaseURL:   oc.BaseURL,
			Latitude:  oc.Latitude,
			Longitude: oc.Longitude,
			Timezone:  oc.Timezone,
		}, httpClient, slog.Default().With("provider", record.ProviderOpenMeteo))
		if err != nil {
			return nil, err
		}
		providers = append(providers, pipeline.Provider{DatasetID: oc.DatasetID, Source: client})
	}

	return providers, nil
}

// datasetFor maps a provider name to its configured dataset.
func datasetFor(cfg *config.Config, provider string) (string, error) {
	switch provider {
	case record.ProviderStrava:
		return cfg.Providers.Strava.DatasetID, nil
	case record.ProviderOpenMeteo:
		return cfg.Providers.OpenMeteo.DatasetID, nil
	default:
		return "", fmt.Errorf("%w: %s", pipeline.ErrUnknownProvider, provider)
	}
}

// redactDSN masks the password in a PostgreSQL DSN for safe display.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// printReport writes one line per provider.
func printReport(w io.Writer, report *pipeline.Report) {
	if report == nil {
		return
	}
	for _, p := range report.Providers {
		last := "-"
		if p.LastSuccessfulDate != nil {
			last = *p.LastSuccessfulDate
		}
		line := fmt.Sprintf("%-10s %-9s records=%d batches=%d last_successful_date=%s",
			p.Provider, p.State, p.Records, p.Batches, last)
		if p.FailedIn != "" {
			line += " failed_in=" + string(p.FailedIn)
		}
		if p.Error != "" {
			line += " error=" + p.Error
		}
		fmt.Fprintln(w, line)
	}
}
