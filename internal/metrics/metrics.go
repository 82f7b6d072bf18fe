package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"stringline-viewer/internal/refresh"
)

// Fetch outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeNotFound = "not_found"
	OutcomeCanceled = "canceled"
)

// Collector methods are safe on a nil receiver so callers can run without
// metrics.
type Collector struct {
	reg *prometheus.Registry

	Fetches       *prometheus.CounterVec   // dataset, outcome
	FetchDuration *prometheus.HistogramVec // dataset

	CacheHits   *prometheus.CounterVec // query
	CacheMisses *prometheus.CounterVec // query

	RefetchTicks prometheus.Counter
	NowMarkTicks prometheus.Counter
	Superseded   prometheus.Counter

	ActiveSessions prometheus.Gauge

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	LiveStaleTime   prometheus.Gauge // seconds
	LiveInterval    prometheus.Gauge // seconds
	NowMarkInterval prometheus.Gauge // seconds
}

func NewCollector(p refresh.Policies) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stringline_fetches_total",
			Help: "Dataset fetches from the data source by outcome.",
		}, []string{"dataset", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stringline_fetch_duration_seconds",
			Help:    "Duration of data source reads.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"dataset"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stringline_cache_hits_total",
			Help: "Queries served from a fresh cache entry.",
		}, []string{"query"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stringline_cache_misses_total",
			Help: "Queries that were absent or stale in the cache.",
		}, []string{"query"}),
		RefetchTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stringline_refetch_ticks_total",
			Help: "Interval-driven stringline re-fetches.",
		}),
		NowMarkTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stringline_now_mark_ticks_total",
			Help: "Now-marker recomputations.",
		}),
		Superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stringline_superseded_results_total",
			Help: "Fetch results discarded because the chart moved on.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stringline_active_sessions",
			Help: "Number of mounted chart sessions.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stringline_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stringline_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stringline_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stringline_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		LiveStaleTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stringline_live_stale_time_seconds",
			Help: "Stale time of current service day data in seconds.",
		}),
		LiveInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stringline_live_refresh_interval_seconds",
			Help: "Re-fetch interval of current service day data in seconds.",
		}),
		NowMarkInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stringline_now_mark_interval_seconds",
			Help: "Now-marker recompute interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Fetches, c.FetchDuration,
		c.CacheHits, c.CacheMisses,
		c.RefetchTicks, c.NowMarkTicks, c.Superseded,
		c.ActiveSessions,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.LiveStaleTime, c.LiveInterval, c.NowMarkInterval,
	)

	c.LiveStaleTime.Set(p.LiveStaleTime.Seconds())
	c.LiveInterval.Set(p.LiveInterval.Seconds())
	c.NowMarkInterval.Set(p.NowMarkInterval.Seconds())

	return c
}

// Outcome classifies a fetch error.
func Outcome(err error, notFound error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case notFound != nil && errors.Is(err, notFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

func (c *Collector) ObserveFetch(dataset, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Fetches.WithLabelValues(dataset, outcome).Inc()
	c.FetchDuration.WithLabelValues(dataset).Observe(d.Seconds())
}

func (c *Collector) CacheHit(query string) {
	if c != nil {
		c.CacheHits.WithLabelValues(query).Inc()
	}
}

func (c *Collector) CacheMiss(query string) {
	if c != nil {
		c.CacheMisses.WithLabelValues(query).Inc()
	}
}

func (c *Collector) RefetchTick() {
	if c != nil {
		c.RefetchTicks.Inc()
	}
}

func (c *Collector) NowMarkTick() {
	if c != nil {
		c.NowMarkTicks.Inc()
	}
}

func (c *Collector) SupersededResult() {
	if c != nil {
		c.Superseded.Inc()
	}
}

func (c *Collector) SessionOpened() {
	if c != nil {
		c.ActiveSessions.Inc()
	}
}

func (c *Collector) SessionClosed() {
	if c != nil {
		c.ActiveSessions.Dec()
	}
}

// PublisherMetrics implementation for the NATS publisher.

func (c *Collector) NATSPublishedInc() {
	if c != nil {
		c.NATSPublished.Inc()
	}
}

func (c *Collector) NATSPublishErrInc() {
	if c != nil {
		c.NATSPublishErrs.Inc()
	}
}

func (c *Collector) NATSSetConnected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) PublishObserve(d time.Duration) {
	if c != nil {
		c.PublishDuration.Observe(d.Seconds())
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics listening")
	return srv
}
