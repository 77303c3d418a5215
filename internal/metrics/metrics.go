// Package metrics exposes Prometheus instrumentation for the node.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aes67nmos_activations_total",
		Help: "Total number of IS-05 activations by outcome (connected, disconnected, error)",
	}, []string{"outcome"})

	ActivationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aes67nmos_activation_duration_seconds",
		Help:    "Wall time of the activation transaction including daemon and audio side effects",
		Buckets: prometheus.DefBuckets,
	})

	HeartbeatsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aes67nmos_registry_heartbeats_total",
		Help: "Total number of IS-04 registry heartbeats by outcome (ok, lost, error)",
	}, []string{"outcome"})

	RegistrationState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aes67nmos_registry_registered",
		Help: "Whether the node is currently registered with an IS-04 registry (0 or 1)",
	})

	DaemonPollFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aes67nmos_daemon_poll_failures_total",
		Help: "Total number of failed daemon status polls",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aes67nmos_http_requests_total",
		Help: "Total number of HTTP requests by method and status class",
	}, []string{"method", "class"})
)

// IncActivation records one activation outcome.
func IncActivation(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	ActivationsTotal.WithLabelValues(outcome).Inc()
}

// IncHeartbeat records one heartbeat outcome.
func IncHeartbeat(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	HeartbeatsTotal.WithLabelValues(outcome).Inc()
}

// SetRegistered flips the registration gauge.
func SetRegistered(registered bool) {
	if registered {
		RegistrationState.Set(1)
		return
	}
	RegistrationState.Set(0)
}
