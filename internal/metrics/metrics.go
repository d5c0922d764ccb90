package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the Prometheus instrumentation of the update engine.
//
// A nil *Metrics is valid and records nothing, so callers never need to check
// whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchBytes    prometheus.Histogram
	retries       *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	errors        *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
	online        prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		registry: reg,
		fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedupd_fetches_total",
				Help: "Total number of fetches by source kind and status class",
			},
			[]string{"kind", "status_class"}, // kind: file, command, network
		),
		fetchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "feedupd_fetch_duration_milliseconds",
				Help: "Duration of fetches in milliseconds",
				Buckets: []float64{
					1,     // local files
					10,    // commands
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					30000, // default timeout
				},
			},
			[]string{"kind"},
		),
		fetchBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "feedupd_fetch_bytes",
				Help: "Distribution of fetched payload sizes",
				Buckets: []float64{
					1024,     // 1KB
					16384,    // 16KB
					131072,   // 128KB - typical feed
					1048576,  // 1MB
					10485760, // 10MB
				},
			},
		),
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedupd_retries_total",
				Help: "Total number of scheduled retries by return code",
			},
			[]string{"return_code"},
		),
		cancellations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedupd_cancellations_total",
				Help: "Total number of cancelled requests by the stage that observed it",
			},
			[]string{"stage"}, // queue, retry, dispatch
		),
		deliveries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedupd_deliveries_total",
				Help: "Total number of delivered requests by return code",
			},
			[]string{"return_code"},
		),
		errors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "feedupd_errors_total",
				Help: "Total number of recorded errors by package and cause",
			},
			[]string{"package", "cause"},
		),
		queueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "feedupd_queue_depth",
				Help: "Number of requests waiting in each queue",
			},
			[]string{"queue"}, // high, normal, results
		),
		online: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "feedupd_online",
				Help: "1 while the engine is online, 0 while suspended",
			},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, or nil for a nil receiver.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFetch(kind string, httpStatus int, duration time.Duration, size int) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(kind, statusClass(httpStatus)).Inc()
	m.fetchDuration.WithLabelValues(kind).Observe(float64(duration.Microseconds()) / 1000.0)
	m.fetchBytes.Observe(float64(size))
}

func (m *Metrics) IncRetry(returnCode string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(returnCode).Inc()
}

func (m *Metrics) IncCancel(stage string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncDelivery(returnCode string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(returnCode).Inc()
}

func (m *Metrics) IncError(pkg, cause string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(pkg, cause).Inc()
}

func (m *Metrics) SetQueueDepth(queue string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

// statusClass buckets HTTP-like statuses. Status 0 means no response.
func statusClass(status int) string {
	switch {
	case status <= 0:
		return "none"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
