package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
	"github.com/tendant/simple-marketplace/pkg/marketplace/imaging"
)

// Metrics holds the HTTP and upload collectors of one server.
type Metrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	uploads     *prometheus.CounterVec
	uploadBytes *prometheus.CounterVec
	images      *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_http_requests_total",
				Help: "Total HTTP requests handled by the marketplace API",
			},
			[]string{"method", "path", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketplace_http_request_duration_seconds",
				Help:    "HTTP request latency of the marketplace API in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_uploads_total",
				Help: "Attachments stored, by backend",
			},
			[]string{"backend"},
		),
		uploadBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_upload_bytes_total",
				Help: "Bytes written to object storage, by backend",
			},
			[]string{"backend"},
		),
		images: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_image_compression_total",
				Help: "Image uploads by compression outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Middleware records request count and latency. The path label is the
// matched route pattern so ids do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := newMetricsResponseWriter(w)
		next.ServeHTTP(wrapped, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		m.requests.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// ObserveUpload is a marketplace.UploadObserver.
func (m *Metrics) ObserveUpload(backend string, obj marketplace.StoredObject, shrink imaging.Result) {
	m.uploads.WithLabelValues(backend).Inc()
	m.uploadBytes.WithLabelValues(backend).Add(float64(obj.Size))
	switch {
	case shrink.Compressed:
		m.images.WithLabelValues("compressed").Inc()
	case shrink.Original:
		m.images.WithLabelValues("original").Inc()
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
