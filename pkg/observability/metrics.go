package observability

import (
	"context"
	"net/http"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "threadgraph"

// Metrics holds the collectors fed by the engine's lifecycle hooks.
type Metrics struct {
	gatherer prometheus.Gatherer

	TurnsStarted  prometheus.Counter
	TurnsFinished *prometheus.CounterVec
	TurnDuration  *prometheus.HistogramVec
	ActiveTurns   prometheus.Gauge
	NodeVisits    *prometheus.CounterVec
	NodeDuration  *prometheus.HistogramVec
	NodeErrors    *prometheus.CounterVec
	Fragments     *prometheus.CounterVec
	Checkpoints   prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,
		TurnsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_started_total",
			Help:      "Total number of turns started",
		}),
		TurnsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_finished_total",
			Help:      "Total number of finished turns by outcome",
		}, []string{"outcome"}),
		TurnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Duration of turns by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"outcome"}),
		ActiveTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Number of turns currently running",
		}),
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node visits",
		}, []string{"node_id"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Duration of node executions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"node_id"}),
		NodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_errors_total",
			Help:      "Total number of failed node executions",
		}, []string{"node_id"}),
		Fragments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_total",
			Help:      "Total number of streamed fragments",
		}, []string{"node_id"}),
		Checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_written_total",
			Help:      "Total number of checkpoints written",
		}),
	}

	reg.MustRegister(
		m.TurnsStarted, m.TurnsFinished, m.TurnDuration, m.ActiveTurns,
		m.NodeVisits, m.NodeDuration, m.NodeErrors, m.Fragments, m.Checkpoints,
	)
	return m
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTurnStart: func(_ context.Context, _ *domain.TurnEvent) {
			m.TurnsStarted.Inc()
			m.ActiveTurns.Inc()
		},
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.ActiveTurns.Dec()
			outcome := string(e.Outcome)
			m.TurnsFinished.WithLabelValues(outcome).Inc()
			m.TurnDuration.WithLabelValues(outcome).Observe(e.Duration.Seconds())
		},
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(e.NodeID).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(e.NodeID).Observe(e.Duration.Seconds())
			if e.Fragments > 0 {
				m.Fragments.WithLabelValues(e.NodeID).Add(float64(e.Fragments))
			}
			if e.Err != nil {
				m.NodeErrors.WithLabelValues(e.NodeID).Inc()
			}
		},
		OnCheckpoint: func(_ context.Context, _ *domain.CheckpointEvent) {
			m.Checkpoints.Inc()
		},
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
