package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff between retried GETs.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultBackoff retries rate-limited and 5xx responses twice.
var DefaultBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

const maxErrorBody = 64 << 10

var (
	errRateLimited = errors.New("rate limited")
	errCircuitOpen = errors.New("circuit breaker open")
)

// HTTP performs idempotent JSON GETs with retries and a circuit breaker.
type HTTP struct {
	client  *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// NewHTTP wraps client for the named upstream. The client's Timeout bounds
// every individual call.
func NewHTTP(name string, client *http.Client, backoff BackoffConfig) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: breakerSuccess,
	})
	return &HTTP{client: client, backoff: backoff, circuit: cb}
}

// GetJSON issues GET url with the given headers and decodes a 2xx body into v.
// Non-2xx responses become *StatusError; every failure wraps ErrFetchFailed.
func (h *HTTP) GetJSON(ctx context.Context, url string, header http.Header, v any) error {
	resp, err := h.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		for k, vals := range header {
			for _, val := range vals {
				req.Header.Add(k, val)
			}
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrFetchFailed, err)
	}
	return nil
}

func (h *HTTP) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		req, err := build()
		if err != nil {
			return nil, err
		}

		result, err := h.circuit.Execute(func() (interface{}, error) {
			resp, err := h.client.Do(req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			defer resp.Body.Close() //nolint:errcheck
			if resp.StatusCode == http.StatusTooManyRequests {
				return nil, errRateLimited
			}
			return nil, readStatusError(resp)
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if !retryable(err) || attempt >= h.backoff.MaxRetries {
			return nil, err
		}

		delay := h.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if h.backoff.MaxInterval > 0 && delay > h.backoff.MaxInterval {
			delay = h.backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}

// breakerSuccess reports whether a call result leaves the breaker's failure
// count alone. Client errors mean the upstream answered, so only transport
// errors, rate limiting and 5xx count against it.
func breakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// retryable reports whether a failed GET may be repeated: rate limiting,
// server errors and transport errors. Client errors are final.
func retryable(err error) bool {
	if errors.Is(err, errRateLimited) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func readStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{StatusCode: resp.StatusCode}

	var payload struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Reason != "":
			se.Reason = payload.Reason
		case payload.Message != "":
			se.Reason = payload.Message
		}
	}
	if se.Reason == "" {
		se.Reason = strings.TrimSpace(string(body))
	}
	return se
}
