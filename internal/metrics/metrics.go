// Package metrics exposes delivery-path counters for the routing core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery path labels.
const (
	PathLocal   = "local"
	PathRelay   = "relay"
	PathOffline = "offline"
)

type Metrics struct {
	Deliveries       *prometheus.CounterVec
	DeliveryFailures prometheus.Counter
	OnlineUsers      prometheus.GaugeFunc
}

// New registers the core's collectors on reg. lenFn reports the current
// connection registry size.
func New(reg prometheus.Registerer, lenFn func() int) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "deliveries_total",
			Help:      "Messages routed, by delivery path.",
		}, []string{"path"}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "delivery_failures_total",
			Help:      "Per-recipient deliveries that failed on every path.",
		}),
		OnlineUsers: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "online_users",
			Help:      "Users connected to this node.",
		}, func() float64 { return float64(lenFn()) }),
	}
}

// Delivered records one successful routing decision.
func (m *Metrics) Delivered(path string) {
	m.Deliveries.WithLabelValues(path).Inc()
}

// Failed records a recipient skipped on all three paths.
func (m *Metrics) Failed() {
	m.DeliveryFailures.Inc()
}
