package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "transcribe_etl"

// HTTP metrics (counter/histogram, incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})

	HTTPResponseSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_response_size_bytes",
		Help:      "HTTP response size in bytes.",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 7), // 100B to 100MB
	}, []string{"method", "path_pattern"})
)

// Pipeline counters (incremented directly by the transform and load steps).
var (
	DocumentsParsedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_parsed_total",
		Help:      "Export documents parsed, by result (ok, format_error, io_error).",
	}, []string{"result"})

	BlocksExtractedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blocks_extracted_total",
		Help:      "Transcription blocks extracted from export documents.",
	})

	UtterancesEmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "utterances_emitted_total",
		Help:      "Utterances emitted by the segment merger.",
	})

	DanglingContinuationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dangling_continuations_total",
		Help:      "Documents that ended with an unresolved tilde continuation.",
	})

	ArtifactsWrittenTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifacts_written_total",
		Help:      "Artifacts written to the output store, by kind (tx, meta).",
	}, []string{"kind"})

	NotificationsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_published_total",
		Help:      "Group notifications published to MQTT, by result.",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		HTTPResponseSize,
		DocumentsParsedTotal,
		BlocksExtractedTotal,
		UtterancesEmittedTotal,
		DanglingContinuationsTotal,
		ArtifactsWrittenTotal,
		NotificationsPublishedTotal,
	)
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unknown"
		}
		method := r.Method
		status := strconv.Itoa(sw.status)
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, pattern, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(duration)
		HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(sw.written))
	})
}

// statusWriter wraps http.ResponseWriter to capture status code and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers (e.g. http.Flusher for SSE streaming).
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
