package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"crawlerd/internal/structures"
)

// Event outcome labels for crawlerd_events_total.
const (
	EventsProcessed = "processed"
	EventsSkipped   = "skipped"
	EventsInvalid   = "invalid"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	IncKeyCacheHits()
	IncKeyCacheMisses()
	AddEvents(result string, n int)
	IncRollupFailures()
	ObservePersistenceDuration(duration time.Duration)
	SetRecordsTotal(store string, count int)
	SetRateLimiters(count int)
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	keyCacheHits        prometheus.Counter
	keyCacheMisses      prometheus.Counter
	eventsTotal         *prometheus.CounterVec
	rollupFailures      prometheus.Counter
	persistenceDuration prometheus.Histogram
	recordsTotal        *prometheus.GaugeVec
	rateLimiters        prometheus.Gauge
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) IncKeyCacheHits() {
	m.keyCacheHits.Inc()
}

func (m *MetricsProvider) IncKeyCacheMisses() {
	m.keyCacheMisses.Inc()
}

func (m *MetricsProvider) AddEvents(result string, n int) {
	if n <= 0 {
		return
	}
	m.eventsTotal.WithLabelValues(result).Add(float64(n))
}

func (m *MetricsProvider) IncRollupFailures() {
	m.rollupFailures.Inc()
}

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) SetRecordsTotal(store string, count int) {
	m.recordsTotal.WithLabelValues(store).Set(float64(count))
}

func (m *MetricsProvider) SetRateLimiters(count int) {
	m.rateLimiters.Set(float64(count))
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	return &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlerd_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawlerd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawlerd_cache_hits_total",
			Help: "Total number of stats response cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawlerd_cache_misses_total",
			Help: "Total number of stats response cache misses",
		}),

		keyCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawlerd_key_cache_hits_total",
			Help: "Total number of API key cache hits",
		}),

		keyCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawlerd_key_cache_misses_total",
			Help: "Total number of API key cache misses",
		}),

		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlerd_events_total",
			Help: "Ingested crawler events by outcome",
		}, []string{"result"}),

		rollupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "crawlerd_rollup_failures_total",
			Help: "Daily rollup merges that failed",
		}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawlerd_persistence_duration_seconds",
			Help:    "Duration of raw event inserts and snapshot writes in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		recordsTotal: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crawlerd_records_total",
			Help: "Number of records held by a store",
		}, []string{"store"}),

		rateLimiters: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "crawlerd_rate_limiters",
			Help: "Number of live per-key rate limiters",
		}),
	}
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) IncKeyCacheHits()                                 {}
func (n *noopMetrics) IncKeyCacheMisses()                               {}
func (n *noopMetrics) AddEvents(_ string, _ int)                        {}
func (n *noopMetrics) IncRollupFailures()                               {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (n *noopMetrics) SetRecordsTotal(_ string, _ int)                  {}
func (n *noopMetrics) SetRateLimiters(_ int)                            {}
