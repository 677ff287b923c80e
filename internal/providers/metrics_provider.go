package providers

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"referrald/internal/structures"
)

const (
	EventOutcomeDelivered = "delivered"
	EventOutcomeDropped   = "dropped"
	EventOutcomeFailed    = "failed"
)

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObservePersistenceDuration(duration time.Duration)
	IncBinds(result string)
	IncPurchases()
	IncRewards(level uint8, points float64)
	IncEvents(sink, outcome string)
}

// ParticipantCounter is satisfied by every participant store.
type ParticipantCounter interface {
	Count(ctx context.Context) (int, error)
}

type MetricsProvider struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     *prometheus.HistogramVec
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	persistenceDuration prometheus.Histogram
	bindsTotal          *prometheus.CounterVec
	purchasesTotal      prometheus.Counter
	rewardsTotal        *prometheus.CounterVec
	pointsTotal         *prometheus.CounterVec
	eventsTotal         *prometheus.CounterVec
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

func (m *MetricsProvider) ObservePersistenceDuration(duration time.Duration) {
	m.persistenceDuration.Observe(duration.Seconds())
}

func (m *MetricsProvider) IncBinds(result string) {
	m.bindsTotal.WithLabelValues(result).Inc()
}

func (m *MetricsProvider) IncPurchases() {
	m.purchasesTotal.Inc()
}

func (m *MetricsProvider) IncRewards(level uint8, points float64) {
	l := strconv.Itoa(int(level))
	m.rewardsTotal.WithLabelValues(l).Inc()
	m.pointsTotal.WithLabelValues(l).Add(points)
}

func (m *MetricsProvider) IncEvents(sink, outcome string) {
	m.eventsTotal.WithLabelValues(sink, outcome).Inc()
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

func NewMetricsProvider(conf *structures.Config, counter ParticipantCounter) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	m := &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referrald_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "referrald_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referrald_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referrald_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		persistenceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "referrald_persistence_duration_seconds",
			Help:    "Duration of snapshot operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),

		bindsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referrald_binds_total",
			Help: "Referrer bind attempts by result",
		}, []string{"result"}),

		purchasesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "referrald_purchases_total",
			Help: "Total number of processed purchases",
		}),

		rewardsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referrald_rewards_total",
			Help: "Rewards credited per referral level",
		}, []string{"level"}),

		pointsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referrald_points_total",
			Help: "Points credited per referral level",
		}, []string{"level"}),

		eventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "referrald_events_total",
			Help: "Events handed to sinks by outcome",
		}, []string{"sink", "outcome"}),
	}

	if counter != nil {
		promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "referrald_participants",
			Help: "Number of participants known to the ledger",
		}, func() float64 {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			n, err := counter.Count(ctx)
			if err != nil {
				return -1
			}
			return float64(n)
		})
	}

	return m
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) ObservePersistenceDuration(_ time.Duration)       {}
func (n *noopMetrics) IncBinds(_ string)                                {}
func (n *noopMetrics) IncPurchases()                                    {}
func (n *noopMetrics) IncRewards(_ uint8, _ float64)                    {}
func (n *noopMetrics) IncEvents(_, _ string)                            {}
