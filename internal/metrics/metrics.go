package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	ConnectionStatus      prometheus.Gauge
	ConnectsTotal         prometheus.Counter
	ReconnectsTotal       prometheus.Counter
	ReconnectDelaySeconds prometheus.Gauge
	KeepAlivePingsTotal   prometheus.Counter

	// Protocol metrics
	FramesDroppedTotal *prometheus.CounterVec

	// Command metrics
	CommandsTotal     *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec
	StreamChunksTotal prometheus.Counter
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Connection metrics
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tether_connection_status",
				Help: "Current connection status (0=idle 1=connecting 2=connected 3=reconnecting 4=disconnected 5=error)",
			},
		),
		ConnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tether_connects_total",
				Help: "Total number of successful socket opens",
			},
		),
		ReconnectsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tether_reconnects_scheduled_total",
				Help: "Total number of reconnect attempts scheduled",
			},
		),
		ReconnectDelaySeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tether_reconnect_delay_seconds",
				Help: "Delay of the most recently scheduled reconnect attempt",
			},
		),
		KeepAlivePingsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tether_keepalive_pings_total",
				Help: "Total number of keep-alive pings sent",
			},
		),

		// Protocol metrics
		FramesDroppedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_frames_dropped_total",
				Help: "Total number of inbound frames dropped",
			},
			[]string{"reason"},
		),

		// Command metrics
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_commands_total",
				Help: "Total number of executed HTTP commands",
			},
			[]string{"method", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tether_command_duration_seconds",
				Help:    "Duration of HTTP command execution in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		StreamChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tether_stream_chunks_total",
				Help: "Total number of stream chunks relayed",
			},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	// Connection metrics
	m.registry.MustRegister(m.ConnectionStatus)
	m.registry.MustRegister(m.ConnectsTotal)
	m.registry.MustRegister(m.ReconnectsTotal)
	m.registry.MustRegister(m.ReconnectDelaySeconds)
	m.registry.MustRegister(m.KeepAlivePingsTotal)

	// Protocol metrics
	m.registry.MustRegister(m.FramesDroppedTotal)

	// Command metrics
	m.registry.MustRegister(m.CommandsTotal)
	m.registry.MustRegister(m.CommandDuration)
	m.registry.MustRegister(m.StreamChunksTotal)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
