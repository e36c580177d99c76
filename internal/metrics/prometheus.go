package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for one engine run.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	jobsTotal   *prometheus.CounterVec
	blocksTotal *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	activeJobs  prometheus.Gauge
	readyQueue  prometheus.Gauge
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initialises the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of function invocations dispatched",
			},
			[]string{"function", "status"},
		),

		blocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocks_total",
				Help:      "Total number of output events that had to wait for back-pressure to clear",
			},
			[]string{"function"},
		),

		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_ms",
				Help:      "Job execution duration in milliseconds",
				Buckets:   buckets,
			},
			[]string{"function"},
		),

		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_jobs",
			Help:      "Jobs currently executing",
		}),

		readyQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready_queue_depth",
			Help:      "Functions currently in the ready set awaiting a worker slot",
		}),
	}

	registry.MustRegister(pm.jobsTotal, pm.blocksTotal, pm.jobDuration, pm.activeJobs, pm.readyQueue)
	promMetrics = pm
}

// RecordPrometheusJob records one job completion for Prometheus scraping.
// A no-op until InitPrometheus has been called.
func RecordPrometheusJob(functionName string, durationMs int64, success bool, blocked bool) {
	if promMetrics == nil {
		return
	}
	status := "succeeded"
	switch {
	case blocked:
		status = "blocked"
		promMetrics.blocksTotal.WithLabelValues(functionName).Inc()
	case !success:
		status = "failed"
	}
	promMetrics.jobsTotal.WithLabelValues(functionName, status).Inc()
	promMetrics.jobDuration.WithLabelValues(functionName).Observe(float64(durationMs))
}

// SetActiveJobs reports the dispatcher's current concurrency level.
func SetActiveJobs(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeJobs.Set(float64(n))
}

// SetReadyQueueDepth reports the dispatcher's current ready-set size.
func SetReadyQueueDepth(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.readyQueue.Set(float64(n))
}

// Handler returns the Prometheus scrape endpoint handler, or nil if
// InitPrometheus was never called.
func Handler() http.Handler {
	if promMetrics == nil {
		return nil
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}
