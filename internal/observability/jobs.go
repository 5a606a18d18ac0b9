package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics exposes Prometheus collectors for background jobs.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultJobOnce    sync.Once
	defaultJobMetrics *JobMetrics
)

// NewJobMetrics registers the job collectors against the provided
// registerer. When the registerer is nil the default Prometheus registerer
// is used.
func NewJobMetrics(registerer prometheus.Registerer) *JobMetrics {
	if registerer == nil {
		defaultJobOnce.Do(func() {
			defaultJobMetrics = buildJobMetrics(prometheus.DefaultRegisterer)
		})
		return defaultJobMetrics
	}
	return buildJobMetrics(registerer)
}

func buildJobMetrics(registerer prometheus.Registerer) *JobMetrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tempora_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tempora_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tempora_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	registerer.MustRegister(runs, failures, duration)
	return &JobMetrics{runs: runs, failures: failures, duration: duration}
}

// Tracker instruments the lifecycle of a single job run.
type Tracker struct {
	metrics *JobMetrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *JobMetrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration and success/failure counts,
// and returns the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}
