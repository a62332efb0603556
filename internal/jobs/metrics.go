package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pull runs and background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	resolved *prometheus.CounterVec
	batches  *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
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

// AddResolved counts procurements resolved to the given procure method.
func (m *Metrics) AddResolved(method string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.resolved.WithLabelValues(method).Add(float64(count))
}

// AddBatches counts pickings created for a company.
func (m *Metrics) AddBatches(companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batches.WithLabelValues(strconv.FormatInt(companyID, 10)).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenishment_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenishment_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replenishment_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	resolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenishment_procurements_resolved_total",
		Help: "Procurements resolved per effective procure method.",
	}, []string{"method"})
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replenishment_pickings_created_total",
		Help: "Pickings created from move batches, per company.",
	}, []string{"company"})
	registerer.MustRegister(runs, failures, duration, resolved, batches)
	return &Metrics{runs: runs, failures: failures, duration: duration, resolved: resolved, batches: batches}
}
