// Package metrics exposes the Prometheus collectors for one run of the
// engine: jobs executed, actions executed, RPC call latency, and
// verification attempts (spec.md §6 external interfaces).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the engine's collectors, separate from the default
// global registry so a host process can run multiple engines side by side.
var Registry = prometheus.NewRegistry()

var (
	jobsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployengine",
			Subsystem: "jobs",
			Name:      "executions_total",
			Help:      "Total job executions grouped by job and terminal status.",
		},
		[]string{"job", "status"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deployengine",
			Subsystem: "jobs",
			Name:      "execution_duration_seconds",
			Help:      "Duration of one job's execution on one network.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"job"},
	)

	actionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployengine",
			Subsystem: "actions",
			Name:      "executions_total",
			Help:      "Total action executions grouped by action type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployengine",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total JSON-RPC calls grouped by method and status.",
		},
		[]string{"method", "status"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "deployengine",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Duration of JSON-RPC calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"method"},
	)

	verificationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "deployengine",
			Subsystem: "verify",
			Name:      "attempts_total",
			Help:      "Total contract verification attempts grouped by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)

	networksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "deployengine",
			Subsystem: "run",
			Name:      "networks_in_flight",
			Help:      "Number of networks currently executing jobs concurrently.",
		},
	)
)

func init() {
	Registry.MustRegister(
		jobsExecuted,
		jobDuration,
		actionsExecuted,
		rpcCalls,
		rpcDuration,
		verificationAttempts,
		networksInFlight,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordJob records one job's terminal status and wall-clock duration.
func RecordJob(job, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobsExecuted.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordAction records one action dispatch's type and outcome.
func RecordAction(actionType, outcome string) {
	if actionType == "" {
		actionType = "unknown"
	}
	actionsExecuted.WithLabelValues(actionType, outcome).Inc()
}

// RecordRPCCall records one JSON-RPC request's method, status, and latency.
func RecordRPCCall(method, status string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	rpcCalls.WithLabelValues(method, status).Inc()
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordVerificationAttempt records one verification submission/poll outcome.
func RecordVerificationAttempt(platform, outcome string) {
	if platform == "" {
		platform = "unknown"
	}
	verificationAttempts.WithLabelValues(platform, outcome).Inc()
}

// SetNetworksInFlight reports how many networks are currently executing
// jobs concurrently, sampled once per run by the orchestrator.
func SetNetworksInFlight(n int) {
	networksInFlight.Set(float64(n))
}
