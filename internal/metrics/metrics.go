// Package metrics provides Prometheus metrics for the filevault server and worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filevault_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Content transfer metrics
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_uploads_total",
			Help: "Total number of uploads by record type",
		},
		[]string{"type", "status"},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filevault_upload_bytes_total",
			Help: "Total decoded bytes written by uploads",
		},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_downloads_total",
			Help: "Total number of content downloads",
		},
		[]string{"status"},
	)

	downloadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filevault_download_bytes_total",
			Help: "Total bytes streamed from the content endpoint",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_auth_attempts_total",
			Help: "Total token resolutions against the session store",
		},
		[]string{"result"},
	)

	// Thumbnail pipeline metrics
	thumbnailJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_thumbnail_jobs_total",
			Help: "Total thumbnail jobs consumed",
		},
		[]string{"result"},
	)

	thumbnailResizesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filevault_thumbnail_resizes_total",
			Help: "Total per-width thumbnail resize attempts",
		},
		[]string{"width", "result"},
	)

	thumbnailJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "filevault_thumbnail_job_duration_seconds",
			Help:    "Thumbnail job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordUpload records an upload by record type.
func RecordUpload(recordType string, bytes int64, success bool) {
	uploadsTotal.WithLabelValues(recordType, outcome(success)).Inc()
	uploadBytes.Add(float64(bytes))
}

// RecordDownload records a content download.
func RecordDownload(bytes int64, success bool) {
	downloadsTotal.WithLabelValues(outcome(success)).Inc()
	downloadBytes.Add(float64(bytes))
}

// RecordAuthAttempt records a session token resolution.
func RecordAuthAttempt(success bool) {
	authAttemptsTotal.WithLabelValues(outcome(success)).Inc()
}

// RecordThumbnailJob records a consumed thumbnail job.
func RecordThumbnailJob(duration time.Duration, success bool) {
	thumbnailJobsTotal.WithLabelValues(outcome(success)).Inc()
	thumbnailJobDuration.Observe(duration.Seconds())
}

// RecordThumbnailResize records a single per-width resize attempt.
func RecordThumbnailResize(width int, success bool) {
	thumbnailResizesTotal.WithLabelValues(strconv.Itoa(width), outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Middleware wraps an HTTP handler with request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Serve starts a metrics HTTP server on addr. It blocks.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
