// Package metrics defines the Prometheus collectors for the sync engine and
// the reference server. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shopmate"

// Metrics holds the engine collectors.
type Metrics struct {
	QueueDepth      prometheus.Gauge
	DeadLetters     prometheus.Gauge
	Commits         *prometheus.CounterVec
	Replays         *prometheus.CounterVec
	RealtimeEvents  *prometheus.CounterVec
	ConnectionState *prometheus.GaugeVec
}

// New creates the engine collectors and registers them on reg when reg is not
// nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_queue_depth",
			Help:      "Pending actions waiting to be committed.",
		}),
		DeadLetters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letters",
			Help:      "Actions that need manual resolution.",
		}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Optimistic mutations committed to the remote store, by action and result.",
		}, []string{"action", "result"}),
		Replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_actions_total",
			Help:      "Queued actions replayed, by result.",
		}, []string{"result"}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Inbound realtime change events, by type and outcome.",
		}, []string{"type", "outcome"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current realtime connection state, 0 otherwise.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(m.QueueDepth, m.DeadLetters, m.Commits, m.Replays, m.RealtimeEvents, m.ConnectionState)
	}
	return m
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) SetDeadLetters(n int) {
	if m == nil {
		return
	}
	m.DeadLetters.Set(float64(n))
}

func (m *Metrics) Commit(action, result string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(action, result).Inc()
}

func (m *Metrics) Replay(result string) {
	if m == nil {
		return
	}
	m.Replays.WithLabelValues(result).Inc()
}

func (m *Metrics) RealtimeEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.RealtimeEvents.WithLabelValues(eventType, outcome).Inc()
}

// SetConnectionState marks state as current and clears the others.
func (m *Metrics) SetConnectionState(state string, all ...string) {
	if m == nil {
		return
	}
	for _, s := range all {
		m.ConnectionState.WithLabelValues(s).Set(0)
	}
	m.ConnectionState.WithLabelValues(state).Set(1)
}

// ServerMetrics holds the reference server collectors.
type ServerMetrics struct {
	Subscribers prometheus.Gauge
	Broadcasts  *prometheus.CounterVec
	Mutations   *prometheus.CounterVec
}

// NewServer creates and registers the server collectors.
func NewServer(reg prometheus.Registerer) *ServerMetrics {
	m := &ServerMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "realtime_subscribers",
			Help:      "Connected realtime subscribers.",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "broadcasts_total",
			Help:      "Change events fanned out, by type.",
		}, []string{"type"}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "mutations_total",
			Help:      "Collection API calls, by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Subscribers, m.Broadcasts, m.Mutations)
	}
	return m
}
