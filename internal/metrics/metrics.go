// Package metrics collects and exposes Prometheus metrics for the chat
// server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the router and the transport report to.
type Recorder interface {
	ConnectionOpened()
	ConnectionClosed()
	EventReceived(event string)
	EventRejected(event, reason string)
	MessagePersisted(kind string, latency time.Duration)
	PersistFailed(kind string)
	DeliveryDropped()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	connections    prometheus.Gauge
	events         *prometheus.CounterVec
	rejected       *prometheus.CounterVec
	persisted      *prometheus.CounterVec
	persistFail    *prometheus.CounterVec
	persistLatency prometheus.Histogram
	dropped        prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of open WebSocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound events received, by event name.",
		}, []string{"event"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_rejected_total",
			Help: "Inbound events rejected, by event name and reason.",
		}, []string{"event", "reason"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_persisted_total",
			Help: "Messages durably stored, by kind.",
		}, []string{"kind"}),
		persistFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_persist_failures_total",
			Help: "Message appends that failed, by kind.",
		}, []string{"kind"}),
		persistLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_persist_latency_seconds",
			Help:    "Latency of successful message appends.",
			Buckets: prometheus.DefBuckets,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_deliveries_dropped_total",
			Help: "Outbound frames dropped because a client buffer was full or closed.",
		}),
	}

	reg.MustRegister(
		c.connections,
		c.events,
		c.rejected,
		c.persisted,
		c.persistFail,
		c.persistLatency,
		c.dropped,
	)

	return c
}

func (c *Collector) ConnectionOpened() { c.connections.Inc() }

func (c *Collector) ConnectionClosed() { c.connections.Dec() }

func (c *Collector) EventReceived(event string) {
	c.events.WithLabelValues(event).Inc()
}

func (c *Collector) EventRejected(event, reason string) {
	c.rejected.WithLabelValues(event, reason).Inc()
}

func (c *Collector) MessagePersisted(kind string, latency time.Duration) {
	c.persisted.WithLabelValues(kind).Inc()
	c.persistLatency.Observe(latency.Seconds())
}

func (c *Collector) PersistFailed(kind string) {
	c.persistFail.WithLabelValues(kind).Inc()
}

func (c *Collector) DeliveryDropped() { c.dropped.Inc() }

// Nop discards everything. Useful in tests and tools.
type Nop struct{}

func (Nop) ConnectionOpened() {}
func (Nop) ConnectionClosed() {}
func (Nop) EventReceived(string) {}
func (Nop) EventRejected(string, string) {}
func (Nop) MessagePersisted(string, time.Duration) {}
func (Nop) PersistFailed(string) {}
func (Nop) DeliveryDropped() {}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
