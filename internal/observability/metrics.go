// Package observability exposes Prometheus metrics for geocoding, the
// geocode cache and resolver sessions.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the service metrics. It satisfies the geocoding
// Recorder and CacheRecorder interfaces and the sessions EventRecorder.
type Collector struct {
	gatherer prometheus.Gatherer

	GeocodeRequests  *prometheus.CounterVec
	GeocodeDurations *prometheus.HistogramVec
	CacheLookups     *prometheus.CounterVec
	ResolverEvents   *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "addressor_geocode_requests_total",
		Help: "Reverse geocode calls, labeled by provider and outcome.",
	}, []string{"provider", "outcome"}), "addressor_geocode_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "addressor_geocode_duration_seconds",
		Help:    "Reverse geocode latency in seconds.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"provider"}), "addressor_geocode_duration_seconds")
	if err != nil {
		return nil, err
	}

	lookups, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "addressor_geocode_cache_lookups_total",
		Help: "Geocode cache lookups, labeled by provider and result (hit, miss, error).",
	}, []string{"provider", "result"}), "addressor_geocode_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "addressor_resolver_events_total",
		Help: "Resolver events handled by sessions, labeled by event and outcome.",
	}, []string{"event", "outcome"}), "addressor_resolver_events_total")
	if err != nil {
		return nil, err
	}

	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "addressor_active_sessions",
		Help: "Current number of live resolver sessions.",
	}), "addressor_active_sessions")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		GeocodeRequests:  requests,
		GeocodeDurations: durations,
		CacheLookups:     lookups,
		ResolverEvents:   events,
		ActiveSessions:   active,
	}, nil
}

// ObserveGeocode records one finished reverse geocode call.
func (c *Collector) ObserveGeocode(provider, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.GeocodeRequests.WithLabelValues(provider, outcome).Inc()
	c.GeocodeDurations.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveCacheLookup records one geocode cache lookup.
func (c *Collector) ObserveCacheLookup(provider, result string) {
	if c == nil {
		return
	}
	c.CacheLookups.WithLabelValues(provider, result).Inc()
}

// ObserveResolverEvent records one handled resolver event.
func (c *Collector) ObserveResolverEvent(event, outcome string) {
	if c == nil {
		return
	}
	c.ResolverEvents.WithLabelValues(event, outcome).Inc()
}

// SetActiveSessions updates the live session gauge.
func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
