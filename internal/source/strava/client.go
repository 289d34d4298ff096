package strava

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/record"
	"github.com/igorvidecnik/databox-integration/internal/source"
)

const (
	// DefaultBaseURL is the Strava v3 REST API root.
	DefaultBaseURL = "https://www.strava.com/api/v3"

	defaultPerPage = 200
	// maxPages caps pagination independently of the request timeout.
	maxPages = 50
)

// TokenSource yields a currently valid bearer token, refreshing as needed.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Config holds the settings for a Client.
type Config struct {
	BaseURL  string
	Location *time.Location
	Energy   EnergyModel
	PerPage  int
	Backoff  *source.BackoffConfig
}

// Client is a source.DailySource backed by the athlete activities endpoint.
type Client struct {
	baseURL string
	http    *source.HTTP
	tokens  TokenSource
	loc     *time.Location
	energy  EnergyModel
	perPage int
	logger  *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewClient creates a Strava client. A nil location means UTC.
func NewClient(cfg Config, tokens TokenSource, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
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
		http:    source.NewHTTP(record.ProviderStrava, httpClient, backoff),
		tokens:  tokens,
		loc:     cfg.Location,
		energy:  cfg.Energy,
		perPage: cfg.PerPage,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Client) Name() string { return record.ProviderStrava }

// FetchDaily returns one Day per date in the normalized range.
func (c *Client) FetchDaily(ctx context.Context, from, to string) ([]record.Record, error) {
	rng, err := daterange.Normalize(from, to, daterange.Of(c.now().In(c.loc)))
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("strava access token: %w", err)
	}

	activities, err := c.listActivities(ctx, token, rng)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("fetched strava activities",
		"range", rng.String(),
		"activities", len(activities),
	)

	days := Aggregate(activities, rng, c.loc, c.energy, c.now)
	out := make([]record.Record, len(days))
	for i, d := range days {
		out[i] = d
	}
	return out, nil
}

// listActivities pages through activities overlapping rng. The query window
// is widened by a day on both sides so local-day attribution can drop
// anything that lands outside after zone conversion.
func (c *Client) listActivities(ctx context.Context, token string, rng daterange.Range) ([]Activity, error) {
	after := rng.From.Start(c.loc).AddDate(0, 0, -1).Unix()
	before := rng.To.AddDays(1).Start(c.loc).AddDate(0, 0, 1).Unix()
	header := http.Header{"Authorization": {"Bearer " + token}}

	var all []Activity
	for page := 1; page <= maxPages; page++ {
		q := url.Values{}
		q.Set("after", strconv.FormatInt(after, 10))
		q.Set("before", strconv.FormatInt(before, 10))
		q.Set("page", strconv.Itoa(page))
		q.Set("per_page", strconv.Itoa(c.perPage))

		var batch []Activity
		if err := c.http.GetJSON(ctx, c.baseURL+"/athlete/activities?"+q.Encode(), header, &batch); err != nil {
			return nil, fmt.Errorf("listing strava activities page %d: %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) < c.perPage {
			return all, nil
		}
	}
	c.logger.Warn("strava pagination limit reached", "pages", maxPages, "activities", len(all))
	return all, nil
}
