package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	// connectionsActive gauges live connections per channel.
	connectionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Current number of live realtime connections.",
		},
		[]string{"channel"},
	)

	// handshakes counts connection attempts by outcome (accepted|rejected).
	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_handshakes_total",
			Help: "Realtime connection attempts by outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// deliveries counts per-recipient enqueue attempts by outcome
	// (delivered|closed|backpressure).
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_deliveries_total",
			Help: "Per-connection deliveries by outcome.",
		},
		[]string{"channel", "outcome"},
	)

	// chatMessages counts accepted, rejected, and truncated chat messages.
	chatMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_chat_messages_total",
			Help: "Inbound chat messages by result.",
		},
		[]string{"result"},
	)

	// notifications counts published order notifications by type and
	// outcome (delivered|dropped).
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_total",
			Help: "Order notifications by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// fanoutSize records how many recipients each broadcast targeted.
	fanoutSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_fanout_recipients",
			Help:    "Recipients targeted per broadcast.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"channel"},
	)
)

func init() {
	prometheus.MustRegister(connectionsActive, handshakes, deliveries, chatMessages, notifications, fanoutSize)
}
