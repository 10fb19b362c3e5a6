package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns its registry so several gateways can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	connections prometheus.Gauge
	online      prometheus.Gauge
	admitted    *prometheus.CounterVec
	evicted     *prometheus.CounterVec
	broadcasts  prometheus.Counter
	routed      prometheus.Counter
	delivered   prometheus.Counter
	dropped     *prometheus.CounterVec
	routeTime   prometheus.Histogram
}

func NewMetrics(gatewayID string) *Metrics {
	labels := prometheus.Labels{"gateway": gatewayID}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ppgate_connections", Help: "Admitted websocket connections.", ConstLabels: labels,
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ppgate_online_users", Help: "Distinct authenticated users in the roster.", ConstLabels: labels,
		}),
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppgate_admitted_total", Help: "Connections admitted, by auth state.", ConstLabels: labels,
		}, []string{"state"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppgate_evicted_total", Help: "Connections removed, by cause.", ConstLabels: labels,
		}, []string{"cause"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppgate_presence_broadcasts_total", Help: "Roster broadcasts sent.", ConstLabels: labels,
		}),
		routed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppgate_messages_routed_total", Help: "Chat messages persisted.", ConstLabels: labels,
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppgate_frames_delivered_total", Help: "Chat frames handed to connections.", ConstLabels: labels,
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ppgate_messages_dropped_total", Help: "Inbound chat payloads dropped, by reason.", ConstLabels: labels,
		}, []string{"reason"}),
		routeTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "ppgate_route_seconds", Help: "Time from receipt to fan-out.", ConstLabels: labels,
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.Registry.MustRegister(
		m.connections, m.online, m.admitted, m.evicted, m.broadcasts,
		m.routed, m.delivered, m.dropped, m.routeTime,
	)
	return m
}
