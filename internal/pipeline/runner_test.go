package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorvidecnik/databox-integration/internal/daterange"
	"github.com/igorvidecnik/databox-integration/internal/record"
	"github.com/igorvidecnik/databox-integration/internal/sink"
	"github.com/igorvidecnik/databox-integration/internal/store"
)

// mockStore records every upsert so tests can inspect the attempt marker.
type mockStore struct {
	mu      sync.Mutex
	states  map[string]store.IngestionState
	upserts []store.IngestionState
	getErr  error
}

func newMockStore() *mockStore {
	return &mockStore{states: make(map[string]store.IngestionState)}
}

func (m *mockStore) GetState(_ context.Context, provider string) (*store.IngestionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	st, ok := m.states[provider]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *mockStore) UpsertState(_ context.Context, st store.IngestionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Provider] = st
	m.upserts = append(m.upserts, st)
	return nil
}

type mockSink struct {
	calls    []string
	rows     map[string][]record.Row
	failWith error
}

func (m *mockSink) Ingest(_ context.Context, datasetID string, rows []record.Row) (*sink.Summary, error) {
	m.calls = append(m.calls, datasetID)
	if m.failWith != nil {
		return nil, m.failWith
	}
	if m.rows == nil {
		m.rows = make(map[string][]record.Row)
	}
	m.rows[datasetID] = rows
	batches := (len(rows) + sink.BatchSize - 1) / sink.BatchSize
	return &sink.Summary{DatasetID: datasetID, BatchCount: batches, TotalRecords: len(rows)}, nil
}

type mockSource struct {
	name  string
	recs  []record.Record
	err   error
	calls int
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) FetchDaily(_ context.Context, from, to string) ([]record.Record, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.recs, nil
}

func weatherDays(from string, n int) []record.Record {
	d, _ := daterange.Parse(from)
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Map{"date": d.AddDays(i).String(), "temperature_max_c": 1.5}
	}
	return recs
}

func stravaDays(from string, n int) []record.Record {
	d, _ := daterange.Parse(from)
	recs := make([]record.Record, n)
	for i := range recs {
		recs[i] = record.Map{"date": d.AddDays(i).String(), "activities": 1}
	}
	return recs
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 4, 6, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestRunner(st *mockStore, sk *mockSink, providers ...Provider) *Runner {
	r := NewRunner(st, sk, providers, nil)
	r.now = fixedClock()
	return r
}

func TestRun_Success(t *testing.T) {
	st := newMockStore()
	sk := &mockSink{}
	strava := &mockSource{name: record.ProviderStrava, recs: stravaDays("2026-01-01", 3)}
	weather := &mockSource{name: record.ProviderOpenMeteo, recs: weatherDays("2026-01-01", 3)}

	r := newTestRunner(st, sk,
		Provider{DatasetID: "ds-strava", Source: strava},
		Provider{DatasetID: "ds-weather", Source: weather},
	)

	report, err := r.Run(context.Background(), "2026-01-01", "2026-01-03")
	require.NoError(t, err)
	require.Len(t, report.Providers, 2)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, []string{"ds-strava", "ds-weather"}, sk.calls)

	for _, p := range report.Providers {
		assert.Equal(t, StateSucceeded, p.State)
		assert.Equal(t, 3, p.Records)
		assert.Equal(t, 1, p.Batches)
		require.NotNil(t, p.LastSuccessfulDate)
		assert.Equal(t, "2026-01-03", *p.LastSuccessfulDate)
	}

	final := st.states[record.ProviderStrava]
	require.NotNil(t, final.LastSuccessfulDate)
	assert.Equal(t, "2026-01-03", *final.LastSuccessfulDate)
	require.NotNil(t, final.LastRunAt)
	assert.Same(t, report, r.LastReport())
}

func TestRun_AttemptMarkerPreservesPriorDate(t *testing.T) {
	st := newMockStore()
	prior := "2025-12-31"
	st.states[record.ProviderOpenMeteo] = store.IngestionState{Provider: record.ProviderOpenMeteo, LastSuccessfulDate: &prior}

	r := newTestRunner(st, &mockSink{}, Provider{DatasetID: "ds", Source: &mockSource{
		name: record.ProviderOpenMeteo, recs: weatherDays("2026-01-01", 2),
	}})
	_, err := r.Run(context.Background(), "", "")
	require.NoError(t, err)

	require.Len(t, st.upserts, 2)
	attempt, commit := st.upserts[0], st.upserts[1]
	require.NotNil(t, attempt.LastSuccessfulDate)
	assert.Equal(t, prior, *attempt.LastSuccessfulDate)
	require.NotNil(t, attempt.LastRunAt)
	require.NotNil(t, commit.LastSuccessfulDate)
	assert.Equal(t, "2026-01-02", *commit.LastSuccessfulDate)
	assert.True(t, commit.LastRunAt.After(*attempt.LastRunAt))
}

func TestRun_SinkFailureDoesNotAdvanceState(t *testing.T) {
	st := newMockStore()
	prior := "2025-12-31"
	st.states[record.ProviderOpenMeteo] = store.IngestionState{Provider: record.ProviderOpenMeteo, LastSuccessfulDate: &prior}

	sk := &mockSink{failWith: fmt.Errorf("batch 2 (100 records): %w", sink.ErrRejected)}
	r := newTestRunner(st, sk, Provider{DatasetID: "ds", Source: &mockSource{
		name: record.ProviderOpenMeteo, recs: weatherDays("2026-01-01", 250),
	}})

	report, err := r.Run(context.Background(), "", "")
	require.ErrorIs(t, err, sink.ErrRejected)
	require.Len(t, report.Providers, 1)
	assert.Equal(t, StateFailed, report.Providers[0].State)
	assert.Contains(t, report.Providers[0].Error, "batch 2")

	// Only the attempt marker was written.
	require.Len(t, st.upserts, 1)
	final := st.states[record.ProviderOpenMeteo]
	require.NotNil(t, final.LastSuccessfulDate)
	assert.Equal(t, prior, *final.LastSuccessfulDate)
	require.NotNil(t, final.LastRunAt)
}

func TestRun_FailFast(t *testing.T) {
	st := newMockStore()
	sk := &mockSink{}
	failing := &mockSource{name: record.ProviderStrava, err: errors.New("upstream down")}
	next := &mockSource{name: record.ProviderOpenMeteo, recs: weatherDays("2026-01-01", 1)}

	r := newTestRunner(st, sk,
		Provider{DatasetID: "a", Source: failing},
		Provider{DatasetID: "b", Source: next},
	)

	report, err := r.Run(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")
	assert.Len(t, report.Providers, 1)
	assert.Zero(t, next.calls, "providers after a failure must not run")
	assert.Empty(t, sk.calls)

	// The failed attempt stays visible.
	attempt, ok := st.states[record.ProviderStrava]
	require.True(t, ok)
	assert.Nil(t, attempt.LastSuccessfulDate)
	assert.NotNil(t, attempt.LastRunAt)
}

func TestRun_InvalidDateTouchesNothing(t *testing.T) {
	st := newMockStore()
	sk := &mockSink{}
	src := &mockSource{name: record.ProviderStrava}
	r := newTestRunner(st, sk, Provider{DatasetID: "a", Source: src})

	_, err := r.Run(context.Background(), "2026-13-01", "2026-01-02")
	require.ErrorIs(t, err, daterange.ErrInvalidDateFormat)
	assert.Empty(t, st.upserts)
	assert.Zero(t, src.calls)
	assert.Empty(t, sk.calls)
	assert.Nil(t, r.LastReport())
}

func TestRun_EmptyRecordsCommitsNullDate(t *testing.T) {
	st := newMockStore()
	prior := "2025-12-31"
	st.states[record.ProviderStrava] = store.IngestionState{Provider: record.ProviderStrava, LastSuccessfulDate: &prior}

	sk := &mockSink{}
	r := newTestRunner(st, sk, Provider{DatasetID: "a", Source: &mockSource{name: record.ProviderStrava}})

	report, err := r.Run(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, 0, report.Providers[0].Records)
	assert.Nil(t, report.Providers[0].LastSuccessfulDate)

	final := st.states[record.ProviderStrava]
	assert.Nil(t, final.LastSuccessfulDate)
	assert.NotNil(t, final.LastRunAt)
}

func TestRun_InvalidRecord(t *testing.T) {
	st := newMockStore()
	sk := &mockSink{}
	src := &mockSource{name: record.ProviderStrava, recs: []record.Record{record.Map{"activities": 1}}}
	r := newTestRunner(st, sk, Provider{DatasetID: "a", Source: src})

	report, err := r.Run(context.Background(), "", "")
	require.ErrorIs(t, err, record.ErrInvalidRecord)
	assert.Empty(t, sk.calls)
	require.Len(t, report.Providers, 1)
	assert.Equal(t, StateFailed, report.Providers[0].State)
	assert.Equal(t, StateValidating, report.Providers[0].FailedIn)
}

func TestRun_FailedInReflectsStep(t *testing.T) {
	tests := []struct {
		name string
		recs []record.Record
		want State
	}{
		{"uncastable value", []record.Record{record.Map{"date": "2026-01-01", "activities": "many"}}, StateCasting},
		{"malformed date", []record.Record{record.Map{"date": "01/02/2026", "activities": 1}}, StateValidating},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sk := &mockSink{}
			src := &mockSource{name: record.ProviderStrava, recs: tt.recs}
			r := newTestRunner(newMockStore(), sk, Provider{DatasetID: "a", Source: src})

			report, err := r.Run(context.Background(), "", "")
			require.ErrorIs(t, err, record.ErrInvalidRecord)
			require.Len(t, report.Providers, 1)
			assert.Equal(t, tt.want, report.Providers[0].FailedIn)
			assert.Empty(t, sk.calls)
		})
	}

	sk := &mockSink{failWith: errors.New("boom")}
	src := &mockSource{name: record.ProviderStrava, recs: stravaDays("2026-01-01", 1)}
	r := newTestRunner(newMockStore(), sk, Provider{DatasetID: "a", Source: src})
	report, err := r.Run(context.Background(), "", "")
	require.Error(t, err)
	assert.Equal(t, StatePushing, report.Providers[0].FailedIn)
}

func TestRun_StateReadError(t *testing.T) {
	st := newMockStore()
	st.getErr = errors.New("disk gone")
	src := &mockSource{name: record.ProviderStrava}
	r := newTestRunner(st, &mockSink{}, Provider{DatasetID: "a", Source: src})

	_, err := r.Run(context.Background(), "", "")
	require.Error(t, err)
	assert.Zero(t, src.calls)
}

func TestRunProvider(t *testing.T) {
	st := newMockStore()
	sk := &mockSink{}
	strava := &mockSource{name: record.ProviderStrava, recs: stravaDays("2026-01-01", 1)}
	weather := &mockSource{name: record.ProviderOpenMeteo, recs: weatherDays("2026-01-01", 1)}
	r := newTestRunner(st, sk,
		Provider{DatasetID: "a", Source: strava},
		Provider{DatasetID: "b", Source: weather},
	)

	report, err := r.RunProvider(context.Background(), record.ProviderOpenMeteo, "2026-01-01", "2026-01-01")
	require.NoError(t, err)
	require.Len(t, report.Providers, 1)
	assert.Equal(t, record.ProviderOpenMeteo, report.Providers[0].Provider)
	assert.Zero(t, strava.calls)

	_, err = r.RunProvider(context.Background(), "garmin", "", "")
	require.ErrorIs(t, err, ErrUnknownProvider)

	assert.Equal(t, []string{record.ProviderStrava, record.ProviderOpenMeteo}, r.Providers())
}
