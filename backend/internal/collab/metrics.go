package collab

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments of one hub. Each instance owns its
// registry so hubs built in tests never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	Connections prometheus.Gauge
	Rooms       prometheus.Gauge

	Inbound   *prometheus.CounterVec
	Delivered prometheus.Counter
	Failed    prometheus.Counter
	Evicted   prometheus.Counter
	Dropped   prometheus.Counter
	Malformed prometheus.Counter

	RelayPublished prometheus.Counter
	RelayReceived  prometheus.Counter
}

// NewMetrics creates the collaboration metrics under namespace
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of live websocket connections",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_rooms",
			Help:      "Number of boards with at least one connection",
		}),
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_inbound_events_total",
			Help:      "Inbound events by type",
		}, []string{"type"}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_delivered_total",
			Help:      "Frames handed to a connection",
		}),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_send_failures_total",
			Help:      "Frames a connection refused",
		}),
		Evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_evictions_total",
			Help:      "Connections removed after a failed send",
		}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_dropped_events_total",
			Help:      "Inbound events dropped for missing fields",
		}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_malformed_events_total",
			Help:      "Inbound frames that could not be decoded",
		}),
		RelayPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_published_total",
			Help:      "Frames published to other instances",
		}),
		RelayReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_received_total",
			Help:      "Frames received from other instances",
		}),
	}

	registry.MustRegister(
		m.Connections,
		m.Rooms,
		m.Inbound,
		m.Delivered,
		m.Failed,
		m.Evicted,
		m.Dropped,
		m.Malformed,
		m.RelayPublished,
		m.RelayReceived,
	)

	return m
}

// Registry returns the registry to expose through promhttp
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
