// Package metrics registers the Prometheus collectors exposed at
// /metrics: probe outcomes and duration, tick duration, cache hit/miss
// per bucket, login attempts by outcome, and API request latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every collector the application emits.
type Registry struct {
	ProbeOutcomesTotal *prometheus.CounterVec
	ProbeDuration      *prometheus.HistogramVec
	TickDuration       prometheus.Histogram
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
	LoginAttempts      *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
}

// New registers every collector on reg and returns the Registry handle.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		ProbeOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Subsystem: "probe",
			Name:      "outcomes_total",
			Help:      "Total number of completed probes by terminal status.",
		}, []string{"status"}),
		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitepulse",
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Probe round-trip duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sitepulse",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a single scheduler tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Cache hits by bucket.",
		}, []string{"bucket"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Cache misses by bucket.",
		}, []string{"bucket"}),
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sitepulse",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sitepulse",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}
