package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "databox_integration"

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Provider runs by outcome.",
	}, []string{"provider", "outcome"})
	stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "state_transitions_total",
		Help:      "Runner state machine transitions by provider and state.",
	}, []string{"provider", "state"})
	recordsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "records_pushed_total",
		Help:      "Daily records accepted by the ingestion API.",
	}, []string{"provider"})
	batchesPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "batches_pushed_total",
		Help:      "Batches accepted by the ingestion API.",
	}, []string{"provider"})
	lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful provider run.",
	}, []string{"provider"})
	runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a provider run.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"provider"})
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Health and state API requests by method and status code.",
	}, []string{"method", "code"})
)

func init() {
	prometheus.MustRegister(runsTotal, stateTransitions, recordsPushed, batchesPushed, lastSuccess, runDuration, httpRequests)
}

// RecordState counts a state machine transition.
func RecordState(provider, state string) {
	stateTransitions.WithLabelValues(provider, state).Inc()
}

// RecordRun counts a finished provider run and its duration.
func RecordRun(provider, outcome string, took time.Duration) {
	runsTotal.WithLabelValues(provider, outcome).Inc()
	runDuration.WithLabelValues(provider).Observe(took.Seconds())
}

// RecordPushed adds accepted records and batches for a provider.
func RecordPushed(provider string, records, batches int) {
	recordsPushed.WithLabelValues(provider).Add(float64(records))
	batchesPushed.WithLabelValues(provider).Add(float64(batches))
}

// RecordSuccess updates the last-success watermark gauge.
func RecordSuccess(provider string, ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSuccess.WithLabelValues(provider).Set(float64(ts.Unix()))
}

// RecordHTTPRequest counts a served API request.
func RecordHTTPRequest(method string, status int) {
	httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
