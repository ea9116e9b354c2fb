package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Round metrics
	RoundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tribunal_rounds_total",
			Help: "Total number of completed review rounds",
		},
		[]string{"decision"}, // decision: approve|reject
	)

	SycophancyScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tribunal_sycophancy_score",
			Help:    "Sycophancy score distribution across rounds",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// Reviewer metrics
	ReviewerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tribunal_reviewer_executions_total",
			Help: "Total number of reviewer executions",
		},
		[]string{"role", "status"}, // status: success|failure
	)

	ReviewerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tribunal_reviewer_duration_seconds",
			Help:    "Reviewer execution duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		},
		[]string{"role"},
	)

	// Escalation metrics
	EscalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tribunal_escalations_total",
			Help: "Total number of adversarial escalations",
		},
		[]string{"outcome"}, // outcome: confirmed|overturned
	)
)

// Init registers all metrics with Prometheus
func Init() {
	prometheus.MustRegister(RoundsTotal)
	prometheus.MustRegister(SycophancyScore)
	prometheus.MustRegister(ReviewerExecutions)
	prometheus.MustRegister(ReviewerDuration)
	prometheus.MustRegister(EscalationsTotal)
}

// Handler returns Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordReviewerExecution records one reviewer invocation
func RecordReviewerExecution(role string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	ReviewerExecutions.WithLabelValues(role, status).Inc()
	ReviewerDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordRound records a completed round. The score is observed only when the
// detector produced one.
func RecordRound(decision string, score float64, scoreKnown bool) {
	RoundsTotal.WithLabelValues(decision).Inc()
	if scoreKnown {
		SycophancyScore.Observe(score)
	}
}

// RecordEscalation records an adversarial escalation outcome
func RecordEscalation(outcome string) {
	EscalationsTotal.WithLabelValues(outcome).Inc()
}
