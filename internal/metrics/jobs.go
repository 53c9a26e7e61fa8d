package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsTotal, jobDuration, workerQueueDepth) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genai_jobs_total",
			Help: "Generation jobs by terminal status.",
		},
		[]string{"status"},
	)

	jobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "genai_job_duration_seconds",
			Help:    "Time from worker pickup to terminal state.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60},
		},
	)

	workerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "genai_worker_queue_depth",
			Help: "Tasks waiting in the worker queue.",
		},
	)
)

func IncJob(status string) {
	jobsTotal.WithLabelValues(norm(status)).Inc()
}

func ObserveJobDuration(d time.Duration) {
	jobDuration.Observe(d.Seconds())
}

func SetQueueDepth(n int) {
	workerQueueDepth.Set(float64(n))
}
