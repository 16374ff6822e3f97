package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "itinerary_ingest"

	// Labels
	phaseLabel   = "phase"
	outcomeLabel = "outcome"
	resultLabel  = "result"
	mediaLabel   = "media_type"
)

// Media row outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Phase results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

/**
* Metrics definition
**/
var mediaRowsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "media_rows_total",
		Help:      "media status rows handled by the media processor, by outcome",
	},
	[]string{mediaLabel, outcomeLabel},
)

var dedupRaceRecoveriesMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dedup_race_recoveries_total",
		Help:      "media creations that hit the uniqueness constraint and resolved to the existing record",
	},
)

var phaseRunsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "phase_runs_total",
		Help:      "pipeline phase invocations, by phase and result",
	},
	[]string{phaseLabel, resultLabel},
)

var phaseDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "phase_duration_seconds",
		Help:      "pipeline phase duration",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	},
	[]string{phaseLabel},
)

var counterDriftMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "counter_drift_repairs_total",
		Help:      "job counter reconciliations that changed at least one counter",
	},
)

var jobOutcomesMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_outcomes_total",
		Help:      "finalized jobs, by review outcome",
	},
	[]string{outcomeLabel},
)

// IncreaseMediaRows counts one processed media row.
func IncreaseMediaRows(mediaType, outcome string) {
	mediaRowsTotalMetric.With(prometheus.Labels{mediaLabel: mediaType, outcomeLabel: outcome}).Inc()
}

// IncreaseRaceRecoveries counts one recovered dedup race.
func IncreaseRaceRecoveries() {
	dedupRaceRecoveriesMetric.Inc()
}

// ObservePhase records one phase invocation.
func ObservePhase(phase string, seconds float64, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	phaseRunsTotalMetric.With(prometheus.Labels{phaseLabel: phase, resultLabel: result}).Inc()
	phaseDurationMetric.With(prometheus.Labels{phaseLabel: phase}).Observe(seconds)
}

// IncreaseCounterDrift counts one reconciliation that repaired drift.
func IncreaseCounterDrift() {
	counterDriftMetric.Inc()
}

// IncreaseJobOutcome counts one finalized job.
func IncreaseJobOutcome(outcome string) {
	jobOutcomesMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(mediaRowsTotalMetric)
	prometheus.MustRegister(dedupRaceRecoveriesMetric)
	prometheus.MustRegister(phaseRunsTotalMetric)
	prometheus.MustRegister(phaseDurationMetric)
	prometheus.MustRegister(counterDriftMetric)
	prometheus.MustRegister(jobOutcomesMetric)
	prometheus.MustRegister(requestsMetric)
	prometheus.MustRegister(latencyMetric)
}
