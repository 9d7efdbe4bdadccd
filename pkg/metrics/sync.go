package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records synchronization outcomes and sweep job durations.
type SyncMetrics struct {
	attemptDuration *prometheus.HistogramVec
	attemptOutcome  *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	jobSuccess      *prometheus.CounterVec
	jobFailure      *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	attemptDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_attempt_duration_seconds",
		Help:    "Duration of outbound synchronization attempts in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	attemptOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_attempt_outcomes",
		Help: "Synchronization attempt outcomes by operation and status.",
	}, []string{"operation", "status"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	jobSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful scheduled job executions.",
	}, []string{"job"})
	jobFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed scheduled job executions.",
	}, []string{"job"})
	reg.MustRegister(attemptDuration, attemptOutcome, jobDuration, jobSuccess, jobFailure)
	return &SyncMetrics{
		attemptDuration: attemptDuration,
		attemptOutcome:  attemptOutcome,
		jobDuration:     jobDuration,
		jobSuccess:      jobSuccess,
		jobFailure:      jobFailure,
	}
}

// ObserveAttempt records the duration and outcome of one attempt.
func (m *SyncMetrics) ObserveAttempt(operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	if m.attemptDuration != nil {
		m.attemptDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
	}
	if m.attemptOutcome != nil {
		m.attemptOutcome.WithLabelValues(normalizeLabel(operation), normalizeLabel(status)).Inc()
	}
}

// ObserveJobDuration records the duration for the named job.
func (m *SyncMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncJobSuccess increments the success counter for the named job.
func (m *SyncMetrics) IncJobSuccess(job string) {
	if m == nil || m.jobSuccess == nil {
		return
	}
	m.jobSuccess.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncJobFailure increments the failure counter for the named job.
func (m *SyncMetrics) IncJobFailure(job string) {
	if m == nil || m.jobFailure == nil {
		return
	}
	m.jobFailure.WithLabelValues(normalizeLabel(job)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
