package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveJob(t *testing.T) {
	before := testutil.ToFloat64(JobRuns.WithLabelValues("test_job", "success"))

	ObserveJob("test_job", "success", time.Now().Add(-time.Second))

	assert.Equal(t, before+1, testutil.ToFloat64(JobRuns.WithLabelValues("test_job", "success")))
	assert.Equal(t, 1, testutil.CollectAndCount(JobDuration, "checkin_job_duration_seconds"))
}

func TestPushAttemptsLabels(t *testing.T) {
	before := testutil.ToFloat64(PushAttempts.WithLabelValues("android", "rate_limited"))
	PushAttempts.WithLabelValues("android", "rate_limited").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PushAttempts.WithLabelValues("android", "rate_limited")))
}
