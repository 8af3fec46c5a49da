package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()
	r.Started("subscriber_count")
	r.Started("subscriber_count")
	r.Completed("subscriber_count", "succeeded")
	r.Completed("subscriber_count", "invalid_session")
	r.ObserveStage("exchanging_code", 120*time.Millisecond)
	r.RegistryRead("identity", "miss")
	r.RateLimited("start")

	require.Equal(t, 2.0, testutil.ToFloat64(r.started.WithLabelValues("subscriber_count")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("subscriber_count", "succeeded")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("subscriber_count", "invalid_session")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.registryReads.WithLabelValues("identity", "miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.throttled.WithLabelValues("start")))
	require.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	r.Started("combined")
	r.Completed("combined", "succeeded")
	r.ObserveStage("submitting_proof", time.Second)
	r.RegistryRead("metrics", "hit")
	r.RateLimited("callback")
}
