package main

import (
	"time"

	"bus-tracker/internal/location"
	"bus-tracker/internal/metrics"
	"bus-tracker/internal/publisher"
	"bus-tracker/internal/refresh"
	"bus-tracker/internal/stops"
)

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}

func wrapRefreshMetrics(c *metrics.Collector) refresh.Metrics {
	if c == nil {
		return nil
	}
	return &refreshMetrics{c: c}
}

type refreshMetrics struct{ c *metrics.Collector }

func (r *refreshMetrics) FetchObserve(trigger string, d time.Duration, err error) {
	r.c.Fetches.WithLabelValues(trigger).Inc()
	r.c.FetchDuration.WithLabelValues(trigger).Observe(d.Seconds())
	if err != nil {
		r.c.FetchErrors.WithLabelValues(trigger).Inc()
	}
}
func (r *refreshMetrics) CountdownSet(s int) { r.c.Countdown.Set(float64(s)) }
func (r *refreshMetrics) BusesSet(n int)     { r.c.ApproachingBuses.Set(float64(n)) }

func wrapLocationMetrics(c *metrics.Collector) location.Metrics {
	if c == nil {
		return nil
	}
	return &locationMetrics{c: c}
}

type locationMetrics struct{ c *metrics.Collector }

func (l *locationMetrics) LocationEventInc(event string) { l.c.LocationEvents.WithLabelValues(event).Inc() }

func wrapCacheMetrics(c *metrics.Collector) stops.CacheMetrics {
	if c == nil {
		return nil
	}
	return &cacheMetrics{c: c}
}

type cacheMetrics struct{ c *metrics.Collector }

func (m *cacheMetrics) CacheHit()  { m.c.StopsCacheHits.Inc() }
func (m *cacheMetrics) CacheMiss() { m.c.StopsCacheMisses.Inc() }
