package telemetry

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records request lifecycle events as Prometheus metrics.
// Paths are deliberately not used as labels; they embed resource ids.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	retriesTotal     *prometheus.CounterVec
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// NewMetrics registers the console metrics on registry (the default registerer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_requests_total",
				Help: "Total number of backend requests by outcome",
			},
			[]string{"method", "outcome", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_request_duration_seconds",
				Help:    "Duration of backend requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "outcome"},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "console_requests_in_flight",
				Help: "Number of backend requests currently in flight",
			},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method"},
		),
		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "console_cache_hits_total",
				Help: "Total number of cache hits",
			},
		),
		cacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "console_cache_misses_total",
				Help: "Total number of cache misses",
			},
		),
	}
}

// Record implements Sink.
func (m *Metrics) Record(_ context.Context, evt Event) {
	if m == nil {
		return
	}
	switch evt.Type {
	case EventStart:
		m.requestsInFlight.Inc()
	case EventSuccess, EventFailure:
		m.requestsInFlight.Dec()
		outcome := string(evt.Type)
		m.requestsTotal.WithLabelValues(evt.Method, outcome, statusLabel(evt.Status)).Inc()
		m.requestDuration.WithLabelValues(evt.Method, outcome).Observe(evt.Duration.Seconds())
	case EventRetry:
		m.retriesTotal.WithLabelValues(evt.Method).Inc()
	case EventCacheHit:
		m.cacheHits.Inc()
	case EventCacheMiss:
		m.cacheMisses.Inc()
	}
}

func statusLabel(status int) string {
	if status <= 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
