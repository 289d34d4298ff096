package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/record"
)

func makeRows(t *testing.T, n int) []record.Row {
	t.Helper()
	start := daterange.Date{Year: 2025, Month: 1, Day: 1}
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Map{
			"date":              start.AddDays(i).String(),
			"temperature_max_c": float64(i),
		}
	}
	rows, err := record.CastAndValidate(record.ProviderOpenMeteo, recs)
	require.NoError(t, err)
	return rows
}

type capture struct {
	calls atomic.Int64
	sizes []int
}

func (c *capture) handler(t *testing.T, failOn int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := c.calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/datasets/ds-1/data", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload struct {
			Records []map[string]any `json:"records"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		c.sizes = append(c.sizes, len(payload.Records))

		w.Header().Set("Content-Type", "application/json")
		if n == failOn {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"message":"upstream down"}`))
			return
		}
		_, _ = fmt.Fprintf(w, `{"status":"ok","ingestionId":"ing-%d"}`, n)
	}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(url, "secret", nil, nil)
	require.NoError(t, err)
	return c
}

func TestIngest_Partitions(t *testing.T) {
	for _, n := range []int{1, 99, 100, 101, 250} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			var cp capture
			server := httptest.NewServer(cp.handler(t, 0))
			defer server.Close()

			summary, err := newTestClient(t, server.URL).Ingest(context.Background(), "ds-1", makeRows(t, n))
			require.NoError(t, err)

			want := (n + BatchSize - 1) / BatchSize
			assert.Equal(t, int64(want), cp.calls.Load())
			assert.Equal(t, want, summary.BatchCount)
			assert.Equal(t, n, summary.TotalRecords)
			require.Len(t, summary.Batches, want)
			for i, size := range cp.sizes {
				assert.LessOrEqual(t, size, BatchSize)
				assert.Equal(t, i, summary.Batches[i].Index)
				assert.Equal(t, size, summary.Batches[i].Size)
			}
			assert.Equal(t, "ing-1", summary.Batches[0].Response["ingestionId"])
		})
	}
}

func TestIngest_PreservesOrder(t *testing.T) {
	var dates []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Records []map[string]any `json:"records"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		for _, rec := range payload.Records {
			dates = append(dates, rec["date"].(string))
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	rows := makeRows(t, 150)
	_, err := newTestClient(t, server.URL).Ingest(context.Background(), "ds-1", rows)
	require.NoError(t, err)
	require.Len(t, dates, 150)
	for i, row := range rows {
		assert.Equal(t, row.Date, dates[i])
	}
}

func TestIngest_FailingBatchAborts(t *testing.T) {
	var cp capture
	server := httptest.NewServer(cp.handler(t, 2))
	defer server.Close()

	summary, err := newTestClient(t, server.URL).Ingest(context.Background(), "ds-1", makeRows(t, 250))
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Nil(t, summary)
	assert.Equal(t, int64(2), cp.calls.Load(), "batch 3 must not be sent and batch 1 must not be retried")
}

func TestIngest_ErrorStatusOn2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"error","message":"unknown metric"}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Ingest(context.Background(), "ds-1", makeRows(t, 3))
	require.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "unknown metric")
}

func TestIngest_NonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway</html>`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Ingest(context.Background(), "ds-1", makeRows(t, 3))
	require.ErrorIs(t, err, ErrRejected)
}

func TestIngest_EmptyRowsMakesNoCall(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	summary, err := newTestClient(t, server.URL).Ingest(context.Background(), "ds-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BatchCount)
	assert.Equal(t, 0, summary.TotalRecords)
	assert.Empty(t, summary.Batches)
	assert.Zero(t, calls.Load())
}

func TestIngest_EmptyDatasetID(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0")
	_, err := c.Ingest(context.Background(), "  ", makeRows(t, 1))
	require.ErrorIs(t, err, ErrEmptyDatasetID)
}

func TestNewClient_MissingAPIKey(t *testing.T) {
	_, err := NewClient("", "", nil, nil)
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestIngestionStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/datasets/ds-1/ingestions/ing-7", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		_, _ = w.Write([]byte(`{"status":"completed","ingestionId":"ing-7"}`))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).IngestionStatus(context.Background(), "ds-1", "ing-7")
	require.NoError(t, err)
	assert.Equal(t, "completed", got["status"])
}
