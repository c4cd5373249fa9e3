package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snakeparty"

// Metrics holds the game server collectors.
type Metrics struct {
	SessionsActive    prometheus.Gauge
	SessionsTotal     prometheus.Counter
	HandshakeFailures prometheus.Counter
	Commands          *prometheus.CounterVec
	MovesDrained      prometheus.Counter
	TickDuration      prometheus.Histogram
	ChatBroadcasts    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. A nil reg gets a private registry,
// which is what tests want: no collisions between servers in one process.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of sessions past the key exchange",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of sessions that completed the key exchange",
		}),
		HandshakeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Total number of aborted key exchanges",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of client commands by kind",
		}, []string{"kind"}),
		MovesDrained: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_drained_total",
			Help:      "Total number of moves handed to the engine",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent applying one tick, sleep excluded",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .2},
		}),
		ChatBroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_broadcasts_total",
			Help:      "Total number of chat lines queued for delivery",
		}),

		gatherer: reg,
	}
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}
