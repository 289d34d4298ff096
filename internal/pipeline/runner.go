// Package pipeline runs the fetch, cast, validate, push and commit sequence
// for each configured provider, recording durable ingestion state around it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/observability"
	"github.com/igorvidecnik/databox-integration/internal/record"
	"github.com/igorvidecnik/databox-integration/internal/sink"
	"github.com/igorvidecnik/databox-integration/internal/source"
	"github.com/igorvidecnik/databox-integration/internal/store"
)

// ErrUnknownProvider is returned by RunProvider for an unconfigured name.
var ErrUnknownProvider = errors.New("unknown provider")

// State is a step of a provider run.
type State string

const (
	StateAttempting State = "attempting"
	StateFetching   State = "fetching"
	StateCasting    State = "casting"
	StateValidating State = "validating"
	StatePushing    State = "pushing"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// StateStore persists per-provider ingestion state.
type StateStore interface {
	GetState(ctx context.Context, provider string) (*store.IngestionState, error)
	UpsertState(ctx context.Context, state store.IngestionState) error
}

// Sink accepts validated rows for a dataset.
type Sink interface {
	Ingest(ctx context.Context, datasetID string, rows []record.Row) (*sink.Summary, error)
}

// Provider binds a source to the dataset its records are pushed to.
type Provider struct {
	DatasetID string
	Source    source.DailySource
}

// Name returns the source's provider name.
func (p Provider) Name() string { return p.Source.Name() }

// ProviderReport describes one provider's part of a run.
type ProviderReport struct {
	Provider           string    `json:"provider"`
	State              State     `json:"state"`
	Records            int       `json:"records"`
	Batches            int       `json:"batches"`
	LastSuccessfulDate *string   `json:"last_successful_date"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
	FailedIn           State     `json:"failed_in,omitempty"`
	Error              string    `json:"error,omitempty"`
}

// Report describes a whole run.
type Report struct {
	RunID      string           `json:"run_id"`
	From       string           `json:"from,omitempty"`
	To         string           `json:"to,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Providers  []ProviderReport `json:"providers"`
}

// Runner executes provider runs sequentially in configuration order.
type Runner struct {
	store     StateStore
	sink      Sink
	providers []Provider
	logger    *slog.Logger

	mu   sync.RWMutex
	last *Report

	// now is swapped in tests.
	now func() time.Time
}

// NewRunner creates a Runner. Each provider's Source name must have a
// record schema.
func NewRunner(st StateStore, sk Sink, providers []Provider, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:     st,
		sink:      sk,
		providers: providers,
		logger:    logger,
		now:       time.Now,
	}
}

// Providers returns the configured provider names in run order.
func (r *Runner) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// LastReport returns the most recent run's report, or nil before the first run.
func (r *Runner) LastReport() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Run processes every provider for [from, to]. Empty bounds select each
// source's default window. The first failing provider stops the run; the
// returned report covers the providers attempted so far.
func (r *Runner) Run(ctx context.Context, from, to string) (*Report, error) {
	return r.run(ctx, r.providers, from, to)
}

// RunProvider runs a single provider by name.
func (r *Runner) RunProvider(ctx context.Context, name, from, to string) (*Report, error) {
	for _, p := range r.providers {
		if p.Name() == name {
			return r.run(ctx, []Provider{p}, from, to)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
}

func (r *Runner) run(ctx context.Context, providers []Provider, from, to string) (*Report, error) {
	if err := daterange.Validate(from, to); err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     uuid.NewString(),
		From:      from,
		To:        to,
		StartedAt: r.now().UTC(),
		Providers: make([]ProviderReport, 0, len(providers)),
	}
	logger := r.logger.With("run_id", report.RunID)
	logger.Info("run started", "providers", len(providers), "from", from, "to", to)

	var runErr error
	for _, p := range providers {
		pr, err := r.runProvider(ctx, logger.With("provider", p.Name()), p, from, to)
		report.Providers = append(report.Providers, pr)
		if err != nil {
			runErr = fmt.Errorf("provider %s: %w", p.Name(), err)
			break
		}
	}
	report.FinishedAt = r.now().UTC()

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	if runErr != nil {
		logger.Error("run failed", "error", runErr)
		return report, runErr
	}
	logger.Info("run complete", "duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

func (r *Runner) runProvider(ctx context.Context, logger *slog.Logger, p Provider, from, to string) (ProviderReport, error) {
	name := p.Name()
	pr := ProviderReport{Provider: name, StartedAt: r.now().UTC()}

	enter := func(s State) {
		pr.State = s
		observability.RecordState(name, string(s))
		logger.Info("provider state", "state", s)
	}
	fail := func(err error) (ProviderReport, error) {
		pr.FailedIn = pr.State
		enter(StateFailed)
		pr.FinishedAt = r.now().UTC()
		pr.Error = err.Error()
		observability.RecordRun(name, observability.OutcomeFailure, pr.FinishedAt.Sub(pr.StartedAt))
		logger.Error("provider run failed", "failed_in", pr.FailedIn, "error", err)
		return pr, err
	}

	enter(StateAttempting)
	prior, err := r.store.GetState(ctx, name)
	if err != nil {
		return fail(fmt.Errorf("reading state: %w", err))
	}
	if prior != nil {
		pr.LastSuccessfulDate = prior.LastSuccessfulDate
	}
	attemptAt := r.now().UTC()
	if err := r.store.UpsertState(ctx, store.IngestionState{
		Provider:           name,
		LastSuccessfulDate: pr.LastSuccessfulDate,
		LastRunAt:          &attemptAt,
	}); err != nil {
		return fail(fmt.Errorf("recording attempt: %w", err))
	}

	enter(StateFetching)
	recs, err := p.Source.FetchDaily(ctx, from, to)
	if err != nil {
		return fail(err)
	}

	enter(StateCasting)
	rows, err := record.Cast(name, recs)
	if err != nil {
		return fail(err)
	}

	enter(StateValidating)
	if err := record.Validate(name, rows); err != nil {
		return fail(err)
	}
	if len(rows) == 0 {
		logger.Info("no records to push")
	}

	enter(StatePushing)
	summary, err := r.sink.Ingest(ctx, p.DatasetID, rows)
	if err != nil {
		return fail(err)
	}
	pr.Records = summary.TotalRecords
	pr.Batches = summary.BatchCount
	observability.RecordPushed(name, summary.TotalRecords, summary.BatchCount)

	// An empty run commits a NULL date: no advance happened.
	var committed *string
	maxDate := record.MaxDate(rows)
	if maxDate != "" {
		committed = &maxDate
	}
	doneAt := r.now().UTC()
	if err := r.store.UpsertState(ctx, store.IngestionState{
		Provider:           name,
		LastSuccessfulDate: committed,
		LastRunAt:          &doneAt,
	}); err != nil {
		return fail(fmt.Errorf("committing state: %w", err))
	}
	pr.LastSuccessfulDate = committed

	enter(StateSucceeded)
	pr.FinishedAt = doneAt
	observability.RecordRun(name, observability.OutcomeSuccess, pr.FinishedAt.Sub(pr.StartedAt))
	observability.RecordSuccess(name, doneAt)
	logger.Info("provider run complete",
		"records", pr.Records,
		"batches", pr.Batches,
		"last_successful_date", maxDate,
	)
	return pr, nil
}
