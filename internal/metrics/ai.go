package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		invocationAttempts,
		invocationFallbacks,
		invocationLatencyMs,
		streamOutcomes,
	)
}

var (
	invocationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_invocation_attempts_total",
			Help: "Upstream model attempts by model and outcome kind.",
		},
		[]string{"model", "outcome"},
	)

	invocationFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_invocation_fallbacks_total",
			Help: "Switches from one model to the next, by origin model and reason.",
		},
		[]string{"from", "reason"},
	)

	invocationLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "genai_invocation_latency_ms",
			Help:    "Upstream attempt latency distribution in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 40000},
		},
		[]string{"model", "success"},
	)

	streamOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_stream_outcomes_total",
			Help: "Streaming generations by outcome (complete, partial, cached, failed).",
		},
		[]string{"outcome"},
	)
)

// ObserveAttempt records one upstream attempt. outcome is "ok" or an error kind.
func ObserveAttempt(model, outcome string, latency time.Duration) {
	invocationAttempts.WithLabelValues(norm(model), norm(outcome)).Inc()
	invocationLatencyMs.WithLabelValues(norm(model), strconv.FormatBool(outcome == "ok")).
		Observe(float64(latency.Milliseconds()))
}

func IncFallback(from, reason string) {
	invocationFallbacks.WithLabelValues(norm(from), norm(reason)).Inc()
}

func IncStreamOutcome(outcome string) {
	streamOutcomes.WithLabelValues(norm(outcome)).Inc()
}
