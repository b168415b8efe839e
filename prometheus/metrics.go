package prometheus

import (
	"strings"
	"time"

	"obligation-service/internal/apperr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "obligation"

var (
	// Lifecycle metrics
	TransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_transitions_total",
			Help: "Total number of obligation status transitions by outcome",
		},
		[]string{"transition", "outcome"},
	)

	// Entity operation metrics
	OperationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_operations_total",
			Help: "Total number of entity operations by outcome",
		},
		[]string{"entity", "operation", "outcome"},
	)

	// Audit metrics
	AuditWriteFailuresCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_audit_write_failures_total",
			Help: "Total number of activity log writes that failed",
		},
	)

	// Analysis metrics
	AnalysisJobsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_analysis_jobs_total",
			Help: "Total number of analysis jobs by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// Tenant scope metrics
	TenantScopeRejectionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_tenant_scope_rejections_total",
			Help: "Total number of data store statements refused for missing tenant scope",
		},
		[]string{"operation"},
	)

	// Authentication metrics
	AuthAttemptsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Database operation metrics
	DbOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)
)

// Outcome labels an operation result for counters: "success" or the
// lower-cased error code.
func Outcome(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(apperr.CodeOf(err)))
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DbOperationDuration.WithLabelValues(operationType).Observe(duration)
	}
}

// RecordTransition counts one lifecycle transition attempt.
func RecordTransition(transition string, err error) {
	TransitionsCounter.WithLabelValues(transition, Outcome(err)).Inc()
}

// RecordOperation counts one entity operation.
func RecordOperation(entity, operation string, err error) {
	OperationsCounter.WithLabelValues(entity, operation, Outcome(err)).Inc()
}

// RecordScopeRejection counts a statement refused by the tenant guard.
func RecordScopeRejection(operation string) {
	TenantScopeRejectionsCounter.WithLabelValues(operation).Inc()
}

// RecordAnalysisJob counts one analysis job.
func RecordAnalysisJob(method, outcome string) {
	AnalysisJobsCounter.WithLabelValues(method, outcome).Inc()
}
