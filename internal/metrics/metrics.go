// Package metrics holds the Prometheus metrics of engine sessions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kibitz"

// Metrics contains all engine session metrics.
type Metrics struct {
	SessionsActive  *prometheus.GaugeVec
	EventsEmitted   *prometheus.CounterVec
	EventsDiscarded prometheus.Counter
	CommandsSent    prometheus.Counter
	CommandsIgnored prometheus.Counter
	ParseWarnings   prometheus.Counter
	EngineFailures  prometheus.Counter
	DepthsCompleted prometheus.Counter
}

// NewMetrics creates unregistered metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "Number of engine sessions that are not disposed",
			},
			[]string{"engine"},
		),

		EventsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "events_emitted_total",
				Help:      "Events delivered to subscribers, by event name",
			},
			[]string{"event"},
		),

		EventsDiscarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "events_discarded_total",
				Help:      "Engine output discarded because it belonged to a superseded search",
			},
		),

		CommandsSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "commands_sent_total",
				Help:      "Commands written to engine processes",
			},
		),

		CommandsIgnored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "commands_ignored_total",
				Help:      "Commands dropped because the session was not ready",
			},
		),

		ParseWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "parse_warnings_total",
				Help:      "Malformed engine output lines",
			},
		),

		EngineFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "failures_total",
				Help:      "Engine processes that became unusable",
			},
		),

		DepthsCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "search",
				Name:      "depths_completed_total",
				Help:      "Depths completed by the builtin iterative search",
			},
		),
	}
}

// Register registers all metrics with registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	all := []prometheus.Collector{
		m.SessionsActive,
		m.EventsEmitted,
		m.EventsDiscarded,
		m.CommandsSent,
		m.CommandsIgnored,
		m.ParseWarnings,
		m.EngineFailures,
		m.DepthsCompleted,
	}

	for _, collector := range all {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

var (
	// Registry holds the metrics exposed on /metrics.
	Registry = prometheus.NewRegistry()

	// Default is registered with Registry and used by sessions.
	Default = NewMetrics()
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	if err := Default.Register(Registry); err != nil {
		panic(err)
	}
}

// Handler serves the metrics in Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
