package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector registers the engine's metrics on the default registry.
// A nil collector is valid and records nothing, which keeps tests from
// fighting over global registration.
type PrometheusCollector struct {
	sessionsConnected  prometheus.Gauge
	connectionsTotal   prometheus.Counter
	connectionsClosed  *prometheus.CounterVec
	inboundMessages    *prometheus.CounterVec
	broadcasts         *prometheus.CounterVec
	relaysDelivered    prometheus.Counter
	relaysDropped      *prometheus.CounterVec
	presenceOpDuration *prometheus.HistogramVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "roomhub_sessions_connected",
			Help: "Number of currently connected sessions",
		}),

		connectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomhub_connections_total",
			Help: "Total number of accepted connections",
		}),

		connectionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomhub_connections_closed_total",
			Help: "Total number of closed connections by close reason",
		}, []string{"reason"}),

		inboundMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomhub_inbound_messages_total",
			Help: "Total number of inbound frames by type",
		}, []string{"type"}),

		broadcasts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomhub_broadcasts_total",
			Help: "Total number of group broadcasts by outbound type",
		}, []string{"type"}),

		relaysDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roomhub_relays_delivered_total",
			Help: "Total number of signaling payloads relayed point-to-point",
		}),

		relaysDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roomhub_relays_dropped_total",
			Help: "Total number of signaling relays dropped by reason",
		}, []string{"reason"}),

		presenceOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roomhub_presence_op_duration_seconds",
			Help:    "Duration of presence store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"op"}),
	}
}

func (c *PrometheusCollector) SessionOpened() {
	if c == nil {
		return
	}
	c.connectionsTotal.Inc()
	c.sessionsConnected.Inc()
}

func (c *PrometheusCollector) SessionClosed(reason string) {
	if c == nil {
		return
	}
	c.sessionsConnected.Dec()
	c.connectionsClosed.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) ConnectionRejected(reason string) {
	if c == nil {
		return
	}
	c.connectionsClosed.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) InboundMessage(msgType string) {
	if c == nil {
		return
	}
	c.inboundMessages.WithLabelValues(msgType).Inc()
}

func (c *PrometheusCollector) Broadcast(outboundType string) {
	if c == nil {
		return
	}
	c.broadcasts.WithLabelValues(outboundType).Inc()
}

func (c *PrometheusCollector) RelayDelivered() {
	if c == nil {
		return
	}
	c.relaysDelivered.Inc()
}

func (c *PrometheusCollector) RelayDropped(reason string) {
	if c == nil {
		return
	}
	c.relaysDropped.WithLabelValues(reason).Inc()
}

func (c *PrometheusCollector) ObservePresenceOp(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.presenceOpDuration.WithLabelValues(op).Observe(d.Seconds())
}
