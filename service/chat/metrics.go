package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Delivery results.
const (
	DeliveryDelivered = "delivered"
	DeliveryDropped   = "dropped" // peer closed or its queue was full
	DeliveryMissed    = "missed"  // user not registered
)

type Metrics interface {
	ConnOpened()
	ConnClosed()
	OnlineUsers(n int)
	PresenceBroadcast(audience int)
	Delivery(result string)
}

type NoopMetrics struct{}

func (NoopMetrics) ConnOpened()           {}
func (NoopMetrics) ConnClosed()           {}
func (NoopMetrics) OnlineUsers(int)       {}
func (NoopMetrics) PresenceBroadcast(int) {}
func (NoopMetrics) Delivery(string)       {}

// PromMetrics exports gateway counters to Prometheus.
type PromMetrics struct {
	conns      prometheus.Gauge
	online     prometheus.Gauge
	broadcasts prometheus.Counter
	audience   prometheus.Histogram
	deliveries *prometheus.CounterVec
}

// NewPromMetrics registers the collectors on reg.
func NewPromMetrics(reg prometheus.Registerer) (*PromMetrics, error) {
	m := &PromMetrics{
		conns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ppgw", Name: "connections",
			Help: "Open websocket connections, registered or anonymous.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ppgw", Name: "online_users",
			Help: "Users currently present in the connection registry.",
		}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ppgw", Name: "presence_broadcasts_total",
			Help: "Online user list broadcasts.",
		}),
		audience: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ppgw", Name: "presence_broadcast_audience",
			Help:    "Connections reached per presence broadcast.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ppgw", Name: "deliveries_total",
			Help: "newMessage delivery attempts by result.",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{m.conns, m.online, m.broadcasts, m.audience, m.deliveries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PromMetrics) ConnOpened()       { m.conns.Inc() }
func (m *PromMetrics) ConnClosed()       { m.conns.Dec() }
func (m *PromMetrics) OnlineUsers(n int) { m.online.Set(float64(n)) }
func (m *PromMetrics) PresenceBroadcast(audience int) {
	m.broadcasts.Inc()
	m.audience.Observe(float64(audience))
}
func (m *PromMetrics) Delivery(result string) { m.deliveries.WithLabelValues(result).Inc() }
