package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry          *prometheus.Registry
	requestTotal      *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	rateLimitRejected *prometheus.CounterVec
	queueEnqueued     *prometheus.CounterVec
	photosUploaded    *prometheus.CounterVec
	uploadBytes       prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_api_requests_total",
			Help: "Total HTTP requests handled by the API.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photoflow_api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_api_rate_limit_rejections_total",
			Help: "Total API requests rejected by rate limiting.",
		}, []string{"route"}),
		queueEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_queue_jobs_enqueued_total",
			Help: "Total edit jobs enqueued to the processing queue.",
		}, []string{"queue"}),
		photosUploaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photoflow_api_photos_uploaded_total",
			Help: "Photos stored through the upload endpoint, by content type.",
		}, []string{"content_type"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "photoflow_api_upload_bytes",
			Help:    "Size of uploaded photos in bytes.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.rateLimitRejected,
		m.queueEnqueued,
		m.photosUploaded,
		m.uploadBytes,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routeLabel(r.URL.Path)
		status := statusLabel(recorder.status)

		m.requestTotal.WithLabelValues(r.Method, route, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// routeLabel maps a request path onto its route pattern so ids do not
// explode label cardinality.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case path == "/healthz" || path == "/metrics":
		return path
	case len(parts) >= 2 && parts[0] == "v1" && parts[1] == "photos":
		switch {
		case len(parts) == 2:
			return "/v1/photos"
		case len(parts) == 3 && parts[2] == "export":
			return "/v1/photos/export"
		case len(parts) == 3:
			return "/v1/photos/{id}"
		case len(parts) == 4 && (parts[3] == "image" || parts[3] == "edits"):
			return "/v1/photos/{id}/" + parts[3]
		}
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "edits":
		return "/v1/edits/{id}"
	case path == "/v1/me" || path == "/v1/usage/storage":
		return path
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
