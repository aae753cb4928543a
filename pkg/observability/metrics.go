package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Candidate metrics
	candidatesAttemptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_candidates_attempted_total",
			Help: "Total number of candidate images attempted, by dimension",
		},
		[]string{"dimension"},
	)

	candidatesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_candidates_completed_total",
			Help: "Total number of candidate images that finished generation successfully",
		},
		[]string{"dimension"},
	)

	candidatesFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_candidates_failed_total",
			Help: "Total number of candidate images that failed generation",
		},
		[]string{"dimension", "stage"},
	)

	// Ranking metrics
	comparisonsPerformedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_comparisons_performed_total",
			Help: "Total number of pairwise vision-model comparisons actually performed",
		},
		[]string{"strategy"},
	)

	comparisonsInferredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_comparisons_inferred_total",
			Help: "Total number of pairwise comparisons resolved by transitive inference instead of a model call",
		},
		[]string{"strategy"},
	)

	ensembleVotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_ensemble_votes_total",
			Help: "Total number of individual votes cast within an ensemble comparison",
		},
		[]string{"choice"},
	)

	rankingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagegen_ranking_duration_seconds",
			Help:    "Time to rank one iteration's candidates",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	// Beam-search / iteration metrics
	iterationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagegen_iteration_duration_seconds",
			Help:    "Wall-clock time to expand, generate and rank one beam-search iteration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dimension"},
	)

	sessionsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_sessions_completed_total",
			Help: "Total number of beam-search sessions that ran to completion",
		},
		[]string{"outcome"},
	)

	// Supervisor / collaborator metrics
	serviceRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_service_restarts_total",
			Help: "Total number of collaborator service restarts triggered by the supervisor",
		},
		[]string{"service", "outcome"},
	)

	collaboratorCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "imagegen_collaborator_call_duration_seconds",
			Help:    "Duration of a single collaborator call (text, vision, or image generation)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collaborator", "status"},
	)

	tokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagegen_tokens_total",
			Help: "Total tokens consumed, by model and kind",
		},
		[]string{"model", "kind"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagegen_active_sessions",
			Help: "Number of beam-search sessions currently running",
		},
	)

	goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "imagegen_goroutines",
			Help: "Number of goroutines",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all Prometheus collectors exactly once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			candidatesAttemptedTotal,
			candidatesCompletedTotal,
			candidatesFailedTotal,
			comparisonsPerformedTotal,
			comparisonsInferredTotal,
			ensembleVotesTotal,
			rankingDuration,
			iterationDuration,
			sessionsCompletedTotal,
			serviceRestartsTotal,
			collaboratorCallDuration,
			tokensTotal,
			activeSessions,
			goroutines,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordCandidateAttempted increments the attempted counter for a dimension.
func RecordCandidateAttempted(dimension string) {
	candidatesAttemptedTotal.WithLabelValues(dimension).Inc()
}

// RecordCandidateCompleted increments the completed counter for a dimension.
func RecordCandidateCompleted(dimension string) {
	candidatesCompletedTotal.WithLabelValues(dimension).Inc()
}

// RecordCandidateFailed increments the failed counter for a dimension and
// the pipeline stage (refine, combine, generate) that failed.
func RecordCandidateFailed(dimension, stage string) {
	candidatesFailedTotal.WithLabelValues(dimension, stage).Inc()
}

// RecordComparisonPerformed records one real model-backed comparison.
func RecordComparisonPerformed(strategy string) {
	comparisonsPerformedTotal.WithLabelValues(strategy).Inc()
}

// RecordComparisonInferred records one comparison resolved transitively.
func RecordComparisonInferred(strategy string) {
	comparisonsInferredTotal.WithLabelValues(strategy).Inc()
}

// RecordEnsembleVote records one individual vote within an ensemble call.
func RecordEnsembleVote(choice string) {
	ensembleVotesTotal.WithLabelValues(choice).Inc()
}

// RecordRankingDuration records how long one iteration's ranking call took.
func RecordRankingDuration(strategy string, duration time.Duration) {
	rankingDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordIterationDuration records how long one beam-search iteration took.
func RecordIterationDuration(dimension string, duration time.Duration) {
	iterationDuration.WithLabelValues(dimension).Observe(duration.Seconds())
}

// RecordSessionCompleted records a session's terminal outcome ("won",
// "aborted").
func RecordSessionCompleted(outcome string) {
	sessionsCompletedTotal.WithLabelValues(outcome).Inc()
}

// RecordServiceRestart records a supervisor-triggered restart attempt.
func RecordServiceRestart(service, outcome string) {
	serviceRestartsTotal.WithLabelValues(service, outcome).Inc()
}

// RecordCollaboratorCall records one collaborator call's duration and
// outcome.
func RecordCollaboratorCall(collaborator, status string, duration time.Duration) {
	collaboratorCallDuration.WithLabelValues(collaborator, status).Observe(duration.Seconds())
}

// RecordTokens adds to the running token counters for a model.
func RecordTokens(model, kind string, count int) {
	tokensTotal.WithLabelValues(model, kind).Add(float64(count))
}

// SetActiveSessions sets the active-sessions gauge.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// SetGoroutines sets the goroutines gauge.
func SetGoroutines(count int) {
	goroutines.Set(float64(count))
}
