// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "windchat_active_rooms",
		Help: "Number of rooms with at least one member.",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "windchat_active_connections",
		Help: "Number of live websocket connections.",
	})
	MessagesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "windchat_messages_relayed_total",
		Help: "Opaque message payloads fanned out to rooms.",
	})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "windchat_events_dropped_total",
		Help: "Outbound events dropped on slow or closed connections.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
