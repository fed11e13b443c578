// Package metrics registers the Prometheus collectors for the relay. Feed
// failures must surface here: a stalled consumer with a flat error counter is
// the one failure mode operators cannot otherwise see.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the relay service.
type Metrics struct {
	LiveConnections        prometheus.Gauge
	MessagesDelivered      *prometheus.CounterVec
	FeedEntriesConsumed    *prometheus.CounterVec
	FeedErrors             *prometheus.CounterVec
	NotificationsPersisted prometheus.Counter
}

// New creates and registers all collectors on the provided registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry so
// parallel constructions do not collide.
func New(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_live_connections",
			Help: "Number of websocket connections currently open",
		}),
		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_delivered_total",
			Help: "Messages pushed to client connections, by message type",
		}, []string{"type"}),
		FeedEntriesConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_feed_entries_consumed_total",
			Help: "Entries consumed from the upstream event streams, by stream",
		}, []string{"stream"}),
		FeedErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_feed_errors_total",
			Help: "Decode and source failures per stream",
		}, []string{"stream"}),
		NotificationsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_notifications_persisted_total",
			Help: "Notification records written by the fanout dispatcher",
		}),
	}
}
