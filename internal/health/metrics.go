package health

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the core's Prometheus collectors. A fresh instance is built
// at process start and injected where needed; tests receive their own, so
// nothing registers against a global registry.
type Metrics struct {
	registry *prometheus.Registry

	upstreamCalls    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec

	settlements        *prometheus.CounterVec
	settlementDuration prometheus.Histogram

	matcherPasses  prometheus.Counter
	matcherMatches prometheus.Counter

	snapshotsDropped prometheus.Counter
}

// NewMetrics builds the collector set. gaugeSources supplies live-read
// values (cache stats, subscriber count, queue depth) exposed as GaugeFuncs.
func NewMetrics(gaugeSources GaugeSources) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		upstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bookcore",
				Subsystem: "upstream",
				Name:      "calls_total",
				Help:      "Total upstream operation invocations.",
			},
			[]string{"operation", "outcome"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bookcore",
				Subsystem: "upstream",
				Name:      "call_duration_seconds",
				Help:      "Duration of upstream operation invocations.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"operation"},
		),

		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bookcore",
				Subsystem: "ledger",
				Name:      "settlements_total",
				Help:      "Total settle outcomes by type and result.",
			},
			[]string{"type", "result"},
		),
		settlementDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "bookcore",
				Subsystem: "ledger",
				Name:      "settlement_duration_seconds",
				Help:      "Duration of single settle calls.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
			},
		),

		matcherPasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookcore",
			Subsystem: "matcher",
			Name:      "passes_total",
			Help:      "Total matching passes executed.",
		}),
		matcherMatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookcore",
			Subsystem: "matcher",
			Name:      "matches_total",
			Help:      "Total matches created.",
		}),

		snapshotsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookcore",
			Subsystem: "livepush",
			Name:      "snapshots_dropped_total",
			Help:      "Snapshots dropped for slow subscribers.",
		}),
	}

	m.registry.MustRegister(
		m.upstreamCalls,
		m.upstreamDuration,
		m.settlements,
		m.settlementDuration,
		m.matcherPasses,
		m.matcherMatches,
		m.snapshotsDropped,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	registerGaugeFuncs(m.registry, gaugeSources)
	return m
}

// GaugeSources are live-read callbacks exposed as gauges on scrape. Nil
// fields are simply not registered.
type GaugeSources struct {
	CacheSize       func() float64
	CacheHitRate    func() float64
	Subscribers     func() float64
	SlowConsumers   func() float64
	PendingDepth    func() float64
	MatcherPassSeen func() float64
}

func registerGaugeFuncs(reg *prometheus.Registry, src GaugeSources) {
	register := func(subsystem, name, help string, fn func() float64) {
		if fn == nil {
			return
		}
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "bookcore",
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		}, fn))
	}
	register("cache", "entries", "Current cache entry count.", src.CacheSize)
	register("cache", "hit_rate", "Cache hit rate since start.", src.CacheHitRate)
	register("livepush", "subscribers", "Currently registered live subscribers.", src.Subscribers)
	register("livepush", "slow_consumer_drops", "Cumulative slow-consumer drops.", src.SlowConsumers)
	register("matcher", "pending_depth", "Pending items across both queues.", src.PendingDepth)
	register("matcher", "pass_count", "Matching passes executed.", src.MatcherPassSeen)
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpstreamCall records one upstream invocation outcome.
func (m *Metrics) RecordUpstreamCall(operation, outcome string, duration time.Duration) {
	m.upstreamCalls.WithLabelValues(operation, outcome).Inc()
	m.upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSettlement records one settle outcome.
func (m *Metrics) RecordSettlement(settlementType, result string, duration time.Duration) {
	m.settlements.WithLabelValues(settlementType, result).Inc()
	m.settlementDuration.Observe(duration.Seconds())
}

// RecordMatcherPass records one matching pass and the matches it created.
func (m *Metrics) RecordMatcherPass(matches int) {
	m.matcherPasses.Inc()
	m.matcherMatches.Add(float64(matches))
}

// RecordSnapshotDrops adds to the slow-consumer drop counter.
func (m *Metrics) RecordSnapshotDrops(n int) {
	m.snapshotsDropped.Add(float64(n))
}
