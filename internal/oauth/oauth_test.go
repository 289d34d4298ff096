package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/igorvidecnik/databox-integration/internal/store"
)

type memStore struct {
	tokens map[string]store.Token
	saves  int
}

func (m *memStore) GetToken(_ context.Context, provider string) (*store.Token, error) {
	tok, ok := m.tokens[provider]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

func (m *memStore) SaveToken(_ context.Context, tok store.Token) error {
	m.saves++
	m.tokens[tok.Provider] = tok
	return nil
}

func tokenServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "cid" {
			t.Errorf("client_id = %q, want credentials in params", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","access_token":"new-access","refresh_token":"new-refresh","expires_in":21600}`))
	}))
}

func newSource(url string, ms *memStore) *Source {
	return NewSource(Config{
		Provider:     "strava",
		ClientID:     "cid",
		ClientSecret: "secret",
		TokenURL:     url,
	}, ms, nil, nil)
}

func TestAccessToken_Valid(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls)
	defer server.Close()

	ms := &memStore{tokens: map[string]store.Token{
		"strava": {Provider: "strava", AccessToken: "live", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	got, err := newSource(server.URL, ms).AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "live" {
		t.Errorf("token = %q, want live", got)
	}
	if calls.Load() != 0 {
		t.Errorf("refresh calls = %d, want 0", calls.Load())
	}
	if ms.saves != 0 {
		t.Errorf("saves = %d, want 0", ms.saves)
	}
}

func TestAccessToken_RefreshesExpired(t *testing.T) {
	var calls atomic.Int64
	server := tokenServer(t, &calls)
	defer server.Close()

	ms := &memStore{tokens: map[string]store.Token{
		"strava": {Provider: "strava", AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	got, err := newSource(server.URL, ms).AccessToken(context.Background())
	if err != nil {
		t.Fatalf("AccessToken: %v", err)
	}
	if got != "new-access" {
		t.Errorf("token = %q, want new-access", got)
	}
	if calls.Load() != 1 {
		t.Errorf("refresh calls = %d, want 1", calls.Load())
	}

	saved := ms.tokens["strava"]
	if saved.AccessToken != "new-access" || saved.RefreshToken != "new-refresh" {
		t.Errorf("saved = %+v", saved)
	}
	if !saved.ExpiresAt.After(time.Now()) {
		t.Errorf("saved expiry %v is not in the future", saved.ExpiresAt)
	}
}

func TestAccessToken_NoToken(t *testing.T) {
	ms := &memStore{tokens: map[string]store.Token{}}
	_, err := newSource("http://127.0.0.1:0", ms).AccessToken(context.Background())
	if !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
}

func TestAccessToken_RefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	ms := &memStore{tokens: map[string]store.Token{
		"strava": {Provider: "strava", AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: time.Now().Add(-time.Minute)},
	}}
	if _, err := newSource(server.URL, ms).AccessToken(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if ms.saves != 0 {
		t.Errorf("saves = %d, want 0", ms.saves)
	}
}
