package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckserve_jobs_submitted_total",
			Help: "Total number of background jobs accepted, by kind.",
		},
		[]string{"kind"},
	)
	jobsFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckserve_jobs_finished_total",
			Help: "Total number of background jobs that reached a terminal state, by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
	jobsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duckserve_jobs_in_flight",
			Help: "Number of jobs currently in the processing state, by kind.",
		},
		[]string{"kind"},
	)
	jobDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckserve_job_duration_seconds",
			Help:    "Wall time from processing to terminal state, by kind.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"kind"},
	)
	resultPagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckserve_result_pages_total",
			Help: "Total number of result pages served, by target kind.",
		},
		[]string{"target"},
	)
	resultRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckserve_result_rows_total",
			Help: "Total number of rows returned across all result pages.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		jobsSubmittedTotal,
		jobsFinishedTotal,
		jobsInFlight,
		jobDurationSeconds,
		resultPagesTotal,
		resultRowsTotal,
	)
}

func ObserveJobSubmitted(kind string) {
	jobsSubmittedTotal.WithLabelValues(kind).Inc()
}

func ObserveJobStarted(kind string) {
	jobsInFlight.WithLabelValues(kind).Inc()
}

func ObserveJobFinished(kind string, succeeded bool, elapsed time.Duration) {
	outcome := "completed"
	if !succeeded {
		outcome = "failed"
	}
	jobsInFlight.WithLabelValues(kind).Dec()
	jobsFinishedTotal.WithLabelValues(kind, outcome).Inc()
	jobDurationSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

func ObserveResultPage(target string, rows int) {
	resultPagesTotal.WithLabelValues(target).Inc()
	if rows > 0 {
		resultRowsTotal.Add(float64(rows))
	}
}
