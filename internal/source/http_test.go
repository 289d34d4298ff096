package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var fastBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

func TestHTTP_GetJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer abc")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	defer server.Close()

	h := NewHTTP("test", server.Client(), fastBackoff)
	var out struct {
		Value int `json:"value"`
	}
	err := h.GetJSON(context.Background(), server.URL, http.Header{"Authorization": {"Bearer abc"}}, &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Value != 42 {
		t.Errorf("value = %d, want 42", out.Value)
	}
}

func TestHTTP_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	h := NewHTTP("test", server.Client(), fastBackoff)
	var out map[string]any
	if err := h.GetJSON(context.Background(), server.URL, nil, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestHTTP_ClientErrorIsFinal(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Parameter 'start_date' is out of allowed range"}`))
	}))
	defer server.Close()

	h := NewHTTP("test", server.Client(), fastBackoff)
	var out map[string]any
	err := h.GetJSON(context.Background(), server.URL, nil, &out)
	if !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", se.StatusCode)
	}
	if se.Reason != "Parameter 'start_date' is out of allowed range" {
		t.Errorf("reason = %q", se.Reason)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestHTTP_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	h := NewHTTP("test", server.Client(), fastBackoff)
	var out map[string]any
	if err := h.GetJSON(context.Background(), server.URL, nil, &out); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("error = %v, want ErrFetchFailed", err)
	}
}

func TestHTTP_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":true,"reason":"Parameter 'start_date' is out of allowed range"}`))
	}))
	defer server.Close()

	h := NewHTTP("test", server.Client(), fastBackoff)
	for i := 0; i < 10; i++ {
		var out map[string]any
		err := h.GetJSON(context.Background(), server.URL, nil, &out)
		if errors.Is(err, errCircuitOpen) {
			t.Fatalf("request %d: breaker opened on client errors: %v", i, err)
		}
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
			t.Fatalf("request %d: error = %v, want 400 StatusError", i, err)
		}
	}
	if calls.Load() != 10 {
		t.Errorf("calls = %d, want 10", calls.Load())
	}
}

func TestHTTP_ServerErrorsTripBreaker(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	noRetry := BackoffConfig{MaxRetries: 0}
	h := NewHTTP("test", server.Client(), noRetry)
	var err error
	for i := 0; i < 6; i++ {
		var out map[string]any
		err = h.GetJSON(context.Background(), server.URL, nil, &out)
	}
	if !errors.Is(err, errCircuitOpen) {
		t.Fatalf("error = %v, want open breaker", err)
	}
	if calls.Load() != 5 {
		t.Errorf("calls = %d, want 5", calls.Load())
	}
}

func TestBreakerSuccess(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, true},
		{&StatusError{StatusCode: http.StatusBadRequest}, true},
		{&StatusError{StatusCode: http.StatusNotFound}, true},
		{errRateLimited, false},
		{&StatusError{StatusCode: http.StatusBadGateway}, false},
		{errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		if got := breakerSuccess(tt.err); got != tt.want {
			t.Errorf("breakerSuccess(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
