package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	jobsTotal            *prometheus.CounterVec
	jobDuration          *prometheus.HistogramVec
	activeJobs           prometheus.Gauge
	webhookFailuresTotal *prometheus.CounterVec
	pixelsProcessedTotal prometheus.Counter
	bytesInTotal         prometheus.Counter
	bytesOutTotal        prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_worker_edit_jobs_total",
			Help: "Edit job attempts by outcome.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_worker_edit_job_duration_seconds",
			Help:    "Duration of each edit job attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photoflow_worker_active_jobs",
			Help: "Edit jobs currently holding a processing slot.",
		}),
		webhookFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_worker_webhook_failures_total",
			Help: "Webhook deliveries that failed after all attempts.",
		}, []string{"event"}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_pixels_processed_total",
			Help: "Source pixels decoded by successful edits.",
		}),
		bytesInTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_bytes_in_total",
			Help: "Source bytes read by successful edits.",
		}),
		bytesOutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_bytes_out_total",
			Help: "Exported bytes written by successful edits.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "photoflow_usage_compute_time_ms_total",
			Help: "Compute time in milliseconds across successful edits.",
		}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.webhookFailuresTotal,
		m.pixelsProcessedTotal,
		m.bytesInTotal,
		m.bytesOutTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
