// Package openmeteo fetches daily weather history from the Open-Meteo
// archive API.
package openmeteo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/record"
	"github.com/igorvidecnik/databox-integration/internal/source"
)

// DefaultBaseURL is the historical weather endpoint.
const DefaultBaseURL = "https://archive-api.open-meteo.com/v1/archive"

// dailyVariables are requested in this order and map one-to-one onto Day.
var dailyVariables = []string{
	"temperature_2m_max",
	"temperature_2m_min",
	"temperature_2m_mean",
	"precipitation_sum",
	"rain_sum",
	"snowfall_sum",
	"precipitation_hours",
	"wind_speed_10m_max",
}

// Config holds the settings for a Client.
type Config struct {
	BaseURL   string
	Latitude  float64
	Longitude float64
	// Timezone is an IANA name sent upstream and used to resolve "today".
	Timezone string
	Backoff  *source.BackoffConfig
}

// Client is a source.DailySource for one fixed location.
type Client struct {
	baseURL  string
	lat, lon float64
	tzName   string
	loc      *time.Location
	http     *source.HTTP
	logger   *slog.Logger

	now func() time.Time
}

// NewClient creates an Open-Meteo client. An empty timezone means UTC.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("openmeteo timezone: %w", err)
	}
	backoff := source.DefaultBackoff
	if cfg.Backoff != nil {
		backoff = *cfg.Backoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		lat:     cfg.Latitude,
		lon:     cfg.Longitude,
		tzName:  cfg.Timezone,
		loc:     loc,
		http:    source.NewHTTP(record.ProviderOpenMeteo, httpClient, backoff),
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (c *Client) Name() string { return record.ProviderOpenMeteo }

// FetchDaily returns one Day per date in the normalized range. Days the
// archive does not cover come back with every measurement nil.
func (c *Client) FetchDaily(ctx context.Context, from, to string) ([]record.Record, error) {
	rng, err := daterange.Normalize(from, to, daterange.Of(c.now().In(c.loc)))
	if err != nil {
		return nil, err
	}

	var resp archiveResponse
	err = c.http.GetJSON(ctx, c.archiveURL(rng), nil, &resp)
	switch {
	case isOutOfRange(err):
		c.logger.Warn("weather archive does not cover range, emitting empty days",
			"range", rng.String(),
			"error", err,
		)
		resp = archiveResponse{}
	case err != nil:
		return nil, fmt.Errorf("fetching weather archive: %w", err)
	}

	days := Aggregate(resp.Daily, rng)
	out := make([]record.Record, len(days))
	for i, d := range days {
		out[i] = d
	}
	return out, nil
}

func (c *Client) archiveURL(rng daterange.Range) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(c.lon, 'f', -1, 64))
	q.Set("start_date", rng.From.String())
	q.Set("end_date", rng.To.String())
	q.Set("daily", strings.Join(dailyVariables, ","))
	q.Set("timezone", c.tzName)
	q.Set("wind_speed_unit", "kmh")
	return c.baseURL + "?" + q.Encode()
}

// isOutOfRange reports whether err is the archive rejecting dates it has no
// data for. The upstream signals this only through its reason text.
func isOutOfRange(err error) bool {
	var se *source.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.Reason), "out of allowed range")
}
