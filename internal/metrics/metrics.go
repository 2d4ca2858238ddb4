package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_push_attempts_total",
			Help: "Push delivery attempts by platform and error classification",
		},
		[]string{"platform", "classification"},
	)

	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_dispatch_total",
			Help: "Due calls processed by the dispatch tick, by outcome",
		},
		[]string{"outcome"},
	)

	BatchSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_batch_submissions_total",
			Help: "Telephony batch submissions by result",
		},
		[]string{"result"},
	)

	ReaperTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_reaper_transitions_total",
			Help: "Sessions or pairings swept by the reaper",
		},
		[]string{"sweep"},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkin_job_runs_total",
			Help: "Background job runs by heartbeat status",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkin_job_duration_seconds",
			Help:    "Background job run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

// Dispatch outcome labels.
const (
	OutcomeSent          = "sent"
	OutcomeAlreadyCalled = "already_called"
	OutcomeNoToken       = "no_token"
	OutcomeSendFailed    = "send_failed"
	OutcomeError         = "error"
	OutcomeBatched       = "batched"
)

// Reaper sweep labels.
const (
	SweepMissed    = "missed"
	SweepCompleted = "completed"
	SweepPairings  = "pairings"
)

func ObserveJob(job, status string, started time.Time) {
	JobRuns.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}
