// Package metrics exposes supervisor observability counters for the
// daemon's Prometheus endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ocguard/ocguard/events"
)

// Metrics holds the supervisor's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	probeLatency      prometheus.Histogram
	probeFailures     prometheus.Counter
	reconnectAttempts prometheus.Counter
	reaperKills       prometheus.Counter
	connectionState   prometheus.Gauge
}

// New creates the collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		probeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ocguard",
			Name:      "probe_latency_seconds",
			Help:      "Latency of successful health probes.",
			Buckets:   prometheus.DefBuckets,
		}),
		probeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocguard",
			Name:      "probe_failures_total",
			Help:      "Health probes that timed out or failed to connect.",
		}),
		reconnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocguard",
			Name:      "reconnect_attempts_total",
			Help:      "Autonomous reconnection attempts started.",
		}),
		reaperKills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "ocguard",
			Name:      "reaper_kills_total",
			Help:      "Orphaned client processes terminated by the reaper.",
		}),
		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ocguard",
			Name:      "connected",
			Help:      "1 while the tunnel is established, 0 otherwise.",
		}),
	}
}

// Observe subscribes the collectors to the notification bus. Returns an
// unsubscribe function.
func (m *Metrics) Observe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.ProbeResultEvent) {
			if e.Success {
				m.probeLatency.Observe(e.Latency.Seconds())
			} else {
				m.probeFailures.Inc()
			}
		}),
		bus.Subscribe(func(e events.ReconnectAttemptEvent) {
			m.reconnectAttempts.Inc()
		}),
		bus.Subscribe(func(e events.ReaperSweepEvent) {
			m.reaperKills.Add(float64(e.Killed))
		}),
		bus.Subscribe(func(e events.StateChangedEvent) {
			if e.Current == "Connected" {
				m.connectionState.Set(1)
			} else {
				m.connectionState.Set(0)
			}
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
