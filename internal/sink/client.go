// Package sink pushes validated daily rows to the metrics ingestion API.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/igorvidecnik/databox-integration/internal/record"
)

// BatchSize is the ingestion API's ceiling on records per request.
const BatchSize = 100

// DefaultBaseURL is the ingestion API root.
const DefaultBaseURL = "https://api.databox.com"

const maxResponseBody = 1 << 20

var (
	// ErrRejected is returned when the API answers with a non-2xx status, a
	// body that is not a JSON object, or an explicit error status.
	ErrRejected = errors.New("sink rejected request")
	// ErrEmptyDatasetID is returned when no dataset is configured for a provider.
	ErrEmptyDatasetID = errors.New("dataset id is empty")
	// ErrMissingAPIKey is returned by NewClient without an API key.
	ErrMissingAPIKey = errors.New("sink api key is empty")
)

// BatchResult is the outcome of one submitted batch.
type BatchResult struct {
	Index    int            `json:"batch_index"`
	Size     int            `json:"batch_size"`
	Response map[string]any `json:"response"`
}

// Summary describes a completed Ingest call.
type Summary struct {
	DatasetID    string        `json:"dataset_id"`
	BatchCount   int           `json:"batch_count"`
	TotalRecords int           `json:"total_records"`
	Batches      []BatchResult `json:"batches"`
}

// Client talks to the ingestion API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a sink client. A nil httpClient gets a 20s timeout.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// Ingest submits rows in order, BatchSize at a time. The first failing batch
// aborts the call; batches already accepted stay accepted.
func (c *Client) Ingest(ctx context.Context, datasetID string, rows []record.Row) (*Summary, error) {
	if strings.TrimSpace(datasetID) == "" {
		return nil, ErrEmptyDatasetID
	}

	summary := &Summary{DatasetID: datasetID, Batches: []BatchResult{}}
	if len(rows) == 0 {
		c.logger.Info("no records to ingest", "dataset_id", datasetID)
		return summary, nil
	}

	endpoint := fmt.Sprintf("%s/v1/datasets/%s/data", c.baseURL, url.PathEscape(datasetID))
	for i, start := 0, 0; start < len(rows); i, start = i+1, start+BatchSize {
		end := min(start+BatchSize, len(rows))
		batch := rows[start:end]

		resp, err := c.postBatch(ctx, endpoint, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d (%d records): %w", i+1, len(batch), err)
		}
		c.logger.Debug("batch ingested",
			"dataset_id", datasetID,
			"batch", i+1,
			"size", len(batch),
			"ingestion_id", resp["ingestionId"],
		)
		summary.Batches = append(summary.Batches, BatchResult{Index: i, Size: len(batch), Response: resp})
		summary.BatchCount++
		summary.TotalRecords += len(batch)
	}
	return summary, nil
}

func (c *Client) postBatch(ctx context.Context, endpoint string, batch []record.Row) (map[string]any, error) {
	body, err := json.Marshal(struct {
		Records []record.Row `json:"records"`
	}{Records: batch})
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// IngestionStatus looks up a previously returned ingestion id.
func (c *Client) IngestionStatus(ctx context.Context, datasetID, ingestionID string) (map[string]any, error) {
	if strings.TrimSpace(datasetID) == "" {
		return nil, ErrEmptyDatasetID
	}
	endpoint := fmt.Sprintf("%s/v1/datasets/%s/ingestions/%s",
		c.baseURL, url.PathEscape(datasetID), url.PathEscape(ingestionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var payload map[string]any
	decodeErr := json.Unmarshal(raw, &payload)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil {
			if m, ok := payload["message"].(string); ok && m != "" {
				msg = m
			}
		}
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
	}
	if decodeErr != nil || payload == nil {
		return nil, fmt.Errorf("%w: response is not a JSON object", ErrRejected)
	}
	if status, _ := payload["status"].(string); strings.EqualFold(status, "error") {
		return nil, fmt.Errorf("%w: %v", ErrRejected, payload["message"])
	}
	return payload, nil
}
