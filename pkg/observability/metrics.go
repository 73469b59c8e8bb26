package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/botaas/flowengine/pkg/domain"
)

// Metrics holds the engine collectors.
type Metrics struct {
	NodeVisits   *prometheus.CounterVec
	NodeDuration *prometheus.HistogramVec
	SideEffects  *prometheus.CounterVec
	Steps        *prometheus.CounterVec
	StepDuration prometheus.Histogram
	StepHops     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg skips registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowengine_node_visits_total",
			Help: "Total number of node executions by node type.",
		}, []string{"node_type"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flowengine_node_duration_seconds",
			Help:    "Duration of node executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"node_type"}),
		SideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowengine_side_effects_total",
			Help: "Side effects attempted by type and status.",
		}, []string{"type", "status"}),
		Steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowengine_steps_total",
			Help: "Inbound messages processed by outcome.",
		}, []string{"outcome"}),
		StepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowengine_step_duration_seconds",
			Help:    "Duration of a full step, from inbound message to reply.",
			Buckets: prometheus.DefBuckets,
		}),
		StepHops: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowengine_step_hops",
			Help:    "Nodes executed per step.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 25},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.NodeVisits, m.NodeDuration, m.SideEffects, m.Steps, m.StepDuration, m.StepHops)
	}
	return m
}

// Hooks records into the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeVisits.WithLabelValues(string(e.NodeType)).Inc()
		},
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.NodeDuration.WithLabelValues(string(e.NodeType)).Observe(e.Elapsed.Seconds())
		},
		OnSideEffect: func(_ context.Context, e *domain.SideEffectEvent) {
			m.SideEffects.WithLabelValues(string(e.Effect.Type), e.Effect.Status).Inc()
		},
		OnStepFinished: func(_ context.Context, e *domain.StepEvent) {
			m.Steps.WithLabelValues(string(e.Outcome)).Inc()
			m.StepDuration.Observe(e.Elapsed.Seconds())
			m.StepHops.Observe(float64(e.Hops))
		},
	}
}
