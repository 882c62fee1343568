package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the node-side Prometheus collectors: poll latency, active
// tasks, runner latency, token rotations, and storage bytes moved.
type Metrics struct {
	gatherer prometheus.Gatherer

	pollLatency      prometheus.Histogram
	activeTasks      prometheus.Gauge
	runnerLatency    *prometheus.HistogramVec
	tokenRotateCount prometheus.Counter
	bytesUploaded    prometheus.Counter
	bytesDownloaded  prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	} else {
		gatherer = prometheus.DefaultGatherer
	}

	m := &Metrics{
		gatherer: gatherer,

		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "compute_node_dms_poll_latency_ms",
			Help:    "Latency of DMS lease-by-capability calls, in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 12),
		}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "compute_node_dms_active_task",
			Help: "Number of tasks currently leased and running.",
		}),
		runnerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compute_node_runner_run_latency_ms",
			Help:    "Runner.Run duration, in milliseconds, by capability.",
			Buckets: prometheus.ExponentialBuckets(50, 2, 14),
		}, []string{"capability"}),
		tokenRotateCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compute_node_token_rotate_count",
			Help: "Total domain access-token rotations applied from heartbeat responses.",
		}),
		bytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compute_node_storage_bytes_uploaded",
			Help: "Total bytes uploaded to domain storage.",
		}),
		bytesDownloaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compute_node_storage_bytes_downloaded",
			Help: "Total bytes downloaded from domain storage.",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compute_node_http_requests_total",
			Help: "Total HTTP requests served by the node's own API, by path and status.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compute_node_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		m.pollLatency, m.activeTasks, m.runnerLatency, m.tokenRotateCount,
		m.bytesUploaded, m.bytesDownloaded,
		m.httpRequestsTotal, m.httpRequestDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObservePollLatency(d time.Duration) {
	m.pollLatency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) SetActiveTasks(n int) {
	m.activeTasks.Set(float64(n))
}

func (m *Metrics) ObserveRunnerLatency(capability string, d time.Duration) {
	m.runnerLatency.WithLabelValues(capability).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncTokenRotateCount() {
	m.tokenRotateCount.Inc()
}

func (m *Metrics) AddBytesUploaded(n int64) {
	m.bytesUploaded.Add(float64(n))
}

func (m *Metrics) AddBytesDownloaded(n int64) {
	m.bytesDownloaded.Add(float64(n))
}

// Middleware records request count and duration for the node's own HTTP
// surface (/health, /internal/v1/registrations).
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
			m.httpRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
