package host

import "github.com/prometheus/client_golang/prometheus"

// Stats exposes the host's packet/byte counters and connection gauge,
// styled after golang-io-mqtt's stat.go.
type Stats struct {
	ActiveConnections prometheus.Gauge
	PacketsSent        prometheus.Counter
	PacketsReceived     prometheus.Counter
	BytesSent           prometheus.Counter
	BytesReceived       prometheus.Counter
	Reconnects          prometheus.Counter
}

// NewStats constructs a fresh, unregistered Stats.
func NewStats() *Stats {
	return &Stats{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqttengine_active_connections",
			Help: "Number of currently connected host clients.",
		}),
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqttengine_packets_sent_total",
			Help: "Total MQTT control packets sent.",
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqttengine_packets_received_total",
			Help: "Total MQTT control packets received.",
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqttengine_bytes_sent_total",
			Help: "Total bytes written to the transport.",
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqttengine_bytes_received_total",
			Help: "Total bytes read from the transport.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqttengine_reconnects_total",
			Help: "Total reconnect attempts.",
		}),
	}
}

// Register registers every collector with the given registerer.
func (s *Stats) Register(reg prometheus.Registerer) {
	reg.MustRegister(s.ActiveConnections, s.PacketsSent, s.PacketsReceived,
		s.BytesSent, s.BytesReceived, s.Reconnects)
}
