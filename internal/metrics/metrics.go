// Package metrics exposes client and pipeline counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/skimmer/internal/rbn"
	"github.com/roach88/skimmer/internal/spot"
)

const namespace = "skimmer"

var (
	_ rbn.Metrics  = (*Registry)(nil)
	_ spot.Metrics = (*Registry)(nil)
)

// Registry holds the skimmer collectors. It satisfies rbn.Metrics and
// spot.Metrics.
type Registry struct {
	reg *prometheus.Registry

	connectAttempts *prometheus.CounterVec
	connectFailures *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	bytesReceived   prometheus.Counter
	stateEntries    *prometheus.CounterVec
	state           *prometheus.GaugeVec
	spots           *prometheus.CounterVec
	rejects         *prometheus.CounterVec
}

// NewRegistry creates the collectors on a private registry, together with
// the Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		connectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts per cluster",
		}, []string{"cluster"}),
		connectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_failures_total",
			Help:      "Abandoned connection attempts per cluster and reason",
		}, []string{"cluster", "reason"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Sessions that reached the spot feed",
		}, []string{"cluster"}),
		bytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes read from the spot feed",
		}),
		stateEntries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_entries_total",
			Help:      "Client state machine entries per state",
		}, []string{"state"}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "client_state",
			Help:      "1 for the client's current state, 0 otherwise",
		}, []string{"state"}),
		spots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spot_lines_total",
			Help:      "Spot lines by outcome",
		}, []string{"outcome"}),
		rejects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spot_rejects_total",
			Help:      "Rejected spot lines by reason code",
		}, []string{"code"}),
	}
}

// ConnectAttempt counts a dial to a candidate of cluster.
func (r *Registry) ConnectAttempt(cluster string) {
	r.connectAttempts.WithLabelValues(cluster).Inc()
}

// ConnectFailure counts an abandoned attempt.
func (r *Registry) ConnectFailure(cluster, reason string) {
	r.connectFailures.WithLabelValues(cluster, reason).Inc()
}

// SessionStarted counts a session reaching the feed.
func (r *Registry) SessionStarted(cluster string) {
	r.sessions.WithLabelValues(cluster).Inc()
}

// BytesReceived adds n feed bytes.
func (r *Registry) BytesReceived(n int) {
	r.bytesReceived.Add(float64(n))
}

// StateEntered counts the entry and moves the current-state gauge.
func (r *Registry) StateEntered(state string) {
	r.stateEntries.WithLabelValues(state).Inc()
	r.state.Reset()
	r.state.WithLabelValues(state).Set(1)
}

// SpotOutcome counts a line by outcome; rejected lines also count by code.
func (r *Registry) SpotOutcome(outcome, detail string) {
	r.spots.WithLabelValues(outcome).Inc()
	if outcome == spot.OutcomeRejected && detail != "" {
		r.rejects.WithLabelValues(detail).Inc()
	}
}

// Handler returns an HTTP handler exposing the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
