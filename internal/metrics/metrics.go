// Package metrics exposes Prometheus collectors for the verification pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "valora_verify"

// Recorder owns a private registry so tests can build independent instances.
type Recorder struct {
	registry *prometheus.Registry

	started       *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	registryReads *prometheus.CounterVec
	throttled     *prometheus.CounterVec
}

// NewRecorder registers every collector on a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_started_total",
			Help:      "Authorization handshakes initiated, by claim.",
		}, []string{"claim"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_completed_total",
			Help:      "Finished verification runs, by claim and outcome.",
		}, []string{"claim", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		registryReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registry_reads_total",
			Help:      "Identity and metrics lookups, by kind and result.",
		}, []string{"kind", "result"}),
		throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route scope.",
		}, []string{"scope"}),
	}
	registry.MustRegister(
		r.started,
		r.outcomes,
		r.stageDuration,
		r.registryReads,
		r.throttled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Started counts a new authorization request.
func (r *Recorder) Started(claim string) {
	if r == nil {
		return
	}
	r.started.WithLabelValues(claim).Inc()
}

// Completed counts a finished run. outcome is "succeeded" or a failure reason.
func (r *Recorder) Completed(claim, outcome string) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(claim, outcome).Inc()
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

// RegistryRead counts a reader lookup.
func (r *Recorder) RegistryRead(kind, result string) {
	if r == nil {
		return
	}
	r.registryReads.WithLabelValues(kind, result).Inc()
}

// RateLimited counts a throttled request.
func (r *Recorder) RateLimited(scope string) {
	if r == nil {
		return
	}
	r.throttled.WithLabelValues(scope).Inc()
}

// Gatherer exposes the underlying registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
