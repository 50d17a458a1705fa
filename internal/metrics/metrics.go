package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	// trigger label: scheduled|coordinate|manual
	Fetches       *prometheus.CounterVec
	FetchErrors   *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	ApproachingBuses prometheus.Gauge
	Countdown        prometheus.Gauge // seconds until the next scheduled fetch

	LocationEvents *prometheus.CounterVec // event label: fix|denied|unsupported|timeout

	StopsCacheHits   prometheus.Counter
	StopsCacheMisses prometheus.Counter

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	RefreshPeriod prometheus.Gauge // seconds
	FetchTimeout  prometheus.Gauge // seconds
}

func NewCollector(refreshPeriod, fetchTimeout time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_fetches_total",
			Help: "Arrivals fetches started, by trigger.",
		}, []string{"trigger"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_fetch_errors_total",
			Help: "Arrivals fetches that failed, by trigger.",
		}, []string{"trigger"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_fetch_duration_seconds",
			Help:    "Round trip time of arrivals fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"trigger"}),
		ApproachingBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_approaching_buses",
			Help: "Buses in the last successful arrivals snapshot.",
		}),
		Countdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_countdown_seconds",
			Help: "Seconds shown until the next refresh.",
		}),
		LocationEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_location_events_total",
			Help: "Location tracker outcomes, by event.",
		}, []string{"event"}),
		StopsCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_stops_cache_hits_total",
			Help: "Stop directory lookups served from Redis.",
		}),
		StopsCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_stops_cache_misses_total",
			Help: "Stop directory lookups that went to the backing store.",
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		RefreshPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_refresh_period_seconds",
			Help: "Arrivals refresh period in seconds.",
		}),
		FetchTimeout: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_fetch_timeout_seconds",
			Help: "Client-side timeout of one arrivals fetch.",
		}),
	}

	reg.MustRegister(
		c.Fetches, c.FetchErrors, c.FetchDuration,
		c.ApproachingBuses, c.Countdown,
		c.LocationEvents,
		c.StopsCacheHits, c.StopsCacheMisses,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.RefreshPeriod, c.FetchTimeout,
	)

	c.RefreshPeriod.Set(refreshPeriod.Seconds())
	c.FetchTimeout.Set(fetchTimeout.Seconds())

	return c
}

// Registry exposes the collector's registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
