package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики жизненного цикла демо-данных
var (
	BatchCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demodata_batch_commits_total",
			Help: "Atomic write batches committed, by pipeline stage.",
		},
		[]string{"stage"},
	)

	DocumentsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demodata_documents_written_total",
			Help: "Demo documents written, by entity type.",
		},
		[]string{"entity"},
	)

	DocumentsDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demodata_documents_deleted_total",
			Help: "Demo documents deleted by teardown, by collection.",
		},
		[]string{"collection"},
	)

	IdentityOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "demodata_identity_outcomes_total",
			Help: "Identity provisioning outcomes (created, signed_in, placeholder, fatal).",
		},
		[]string{"outcome"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "demodata_run_duration_seconds",
			Help:    "Seed and reset run durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "result"},
	)
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

var readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "demodata_ready",
	Help: "1 when the document store answered the last readiness probe.",
})

// SetReady records the outcome of the latest readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

var initOnce sync.Once

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			BatchCommits, DocumentsWritten, DocumentsDeleted, IdentityOutcomes, RunDuration,
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
		)
	})
}

// Handler exposes the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps next with in-flight, request count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

var knownPaths = map[string]struct{}{
	"/healthz":       {},
	"/readyz":        {},
	"/metrics":       {},
	"/v1/demo/seed":  {},
	"/v1/demo/reset": {},
}

// CanonicalPath bounds label cardinality: unknown paths collapse to "other".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return "/"
	}
	path = strings.TrimSuffix(path, "/")
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
