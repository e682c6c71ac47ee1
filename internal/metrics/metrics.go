// Package metrics exposes Prometheus collectors for lock contention,
// invocation outcomes and event dispatch.
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Invocation outcomes used as the "outcome" label.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeLockTimeout = "lock_timeout"
	OutcomeCancelled   = "cancelled"
)

// Collector groups every baton metric.
type Collector struct {
	Invocations     *prometheus.CounterVec
	LockWait        *prometheus.HistogramVec
	LockTimeouts    *prometheus.CounterVec
	LocksHeld       prometheus.Gauge
	EventsPublished *prometheus.CounterVec
	HandlerFailures *prometheus.CounterVec
}

// NewCollector builds an unregistered Collector.
func NewCollector() *Collector {
	return &Collector{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baton_invocations_total",
			Help: "Coordinated invocations by agent and outcome",
		}, []string{"agent", "outcome"}),
		LockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "baton_lock_wait_seconds",
			Help:    "Time spent waiting for a resource lock",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"lock"}),
		LockTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baton_lock_timeouts_total",
			Help: "Lock acquisitions abandoned because the timeout elapsed",
		}, []string{"lock"}),
		LocksHeld: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "baton_locks_held",
			Help: "Resource locks currently held",
		}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baton_events_published_total",
			Help: "Events published on the bus",
		}, []string{"event"}),
		HandlerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baton_handler_failures_total",
			Help: "Event handlers that returned an error or panicked",
		}, []string{"event"}),
	}
}

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Register registers every collector on reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.Invocations, c.LockWait, c.LockTimeouts, c.LocksHeld, c.EventsPublished, c.HandlerFailures,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// ObserveInvocation counts one finished invocation.
func (c *Collector) ObserveInvocation(agent, outcome string) {
	if c == nil {
		return
	}
	c.Invocations.WithLabelValues(agent, outcome).Inc()
}

// ObserveLockWait records how long an acquisition waited, successful or not.
func (c *Collector) ObserveLockWait(lock string, d time.Duration) {
	if c == nil {
		return
	}
	c.LockWait.WithLabelValues(lock).Observe(d.Seconds())
}

// ObserveLockTimeout counts an acquisition that gave up.
func (c *Collector) ObserveLockTimeout(lock string) {
	if c == nil {
		return
	}
	c.LockTimeouts.WithLabelValues(lock).Inc()
}

// LockAcquired and LockReleased track the held gauge.
func (c *Collector) LockAcquired() {
	if c == nil {
		return
	}
	c.LocksHeld.Inc()
}

func (c *Collector) LockReleased() {
	if c == nil {
		return
	}
	c.LocksHeld.Dec()
}

// ObservePublish counts one published event.
func (c *Collector) ObservePublish(event string) {
	if c == nil {
		return
	}
	c.EventsPublished.WithLabelValues(event).Inc()
}

// ObserveHandlerFailure counts one failed handler call.
func (c *Collector) ObserveHandlerFailure(event string) {
	if c == nil {
		return
	}
	c.HandlerFailures.WithLabelValues(event).Inc()
}
