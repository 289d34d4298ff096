package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/igorvidecnik/databox-integration/internal/pipeline"
	"github.com/igorvidecnik/databox-integration/internal/store"
)

// StateLister reads persisted ingestion state.
type StateLister interface {
	ListStates(ctx context.Context) ([]store.IngestionState, error)
}

// RunReporter exposes the scheduler's view of pipeline runs.
type RunReporter interface {
	Providers() []string
	LastReport() *pipeline.Report
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	States        StateLister
	Runs          RunReporter
	Logger        *slog.Logger
	StartTime     time.Time
	StorageDriver string
	StoragePath   string
	Version       string
}

// apiError is a JSON error response.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg, Code: status})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// ProviderHealth is one provider's entry in the health response.
type ProviderHealth struct {
	Provider           string         `json:"provider"`
	LastSuccessfulDate *string        `json:"last_successful_date"`
	LastRunAt          *time.Time     `json:"last_run_at"`
	LastRunState       pipeline.State `json:"last_run_state,omitempty"`
	LastRunError       string         `json:"last_run_error,omitempty"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string           `json:"status"`
	Version   string           `json:"version"`
	Uptime    string           `json:"uptime"`
	Providers []ProviderHealth `json:"providers"`
	LastRun   *pipeline.Report `json:"last_run,omitempty"`
	Database  DatabaseHealth   `json:"database"`
}

// DatabaseHealth describes the state store.
type DatabaseHealth struct {
	Driver    string `json:"driver"`
	Status    string `json:"status"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.Version,
		Uptime:    formatUptime(time.Since(h.StartTime)),
		Providers: []ProviderHealth{},
		Database:  DatabaseHealth{Driver: h.StorageDriver, Status: "ok"},
	}

	states, err := h.States.ListStates(r.Context())
	if err != nil {
		h.Logger.Error("health: listing ingestion state", "error", err)
		resp.Status = "unhealthy"
		resp.Database.Status = "error"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	byProvider := make(map[string]store.IngestionState, len(states))
	for _, st := range states {
		byProvider[st.Provider] = st
	}

	names := make([]string, 0, len(states))
	if h.Runs != nil {
		names = append(names, h.Runs.Providers()...)
		resp.LastRun = h.Runs.LastReport()
	} else {
		for _, st := range states {
			names = append(names, st.Provider)
		}
	}

	lastRun := make(map[string]pipeline.ProviderReport)
	if resp.LastRun != nil {
		for _, pr := range resp.LastRun.Providers {
			lastRun[pr.Provider] = pr
		}
	}

	for _, name := range names {
		ph := ProviderHealth{Provider: name}
		if st, ok := byProvider[name]; ok {
			ph.LastSuccessfulDate = st.LastSuccessfulDate
			ph.LastRunAt = st.LastRunAt
		}
		if pr, ok := lastRun[name]; ok {
			ph.LastRunState = pr.State
			ph.LastRunError = pr.Error
			if pr.State == pipeline.StateFailed {
				resp.Status = "degraded"
			}
		}
		resp.Providers = append(resp.Providers, ph)
	}

	// Path omitted to avoid exposing filesystem details.
	if h.StorageDriver == "sqlite" && h.StoragePath != "" {
		if info, err := os.Stat(h.StoragePath); err == nil {
			resp.Database.SizeBytes = info.Size()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetProviderState handles GET /api/v1/providers/{provider}
func (h *Handlers) GetProviderState(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("provider")
	states, err := h.States.ListStates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read ingestion state")
		return
	}
	for _, st := range states {
		if st.Provider == name {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, http.StatusNotFound, "provider has not run")
}

// GetLastRun handles GET /api/v1/runs/last
func (h *Handlers) GetLastRun(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	report := h.Runs.LastReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
