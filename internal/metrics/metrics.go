// Package metrics provides the ambient Prometheus instrumentation for the
// trading agent: cycle/order counters and a couple of gauges, not a
// dashboard (that's explicitly out of scope).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for one running agent.
type Metrics struct {
	CyclesTotal         prometheus.Counter   // Total scheduler cycles run
	CycleDuration       prometheus.Histogram // Duration of a full cycle.run(symbols)
	OrdersTotal         prometheus.Counter   // Total main orders accepted (whatever the protection outcome)
	OrderRetries        prometheus.Counter   // Protected-order protocol retry attempts
	OrderRollbacks      prometheus.Counter   // Rollbacks triggered by stop-loss failure
	ManualInterventions prometheus.Counter   // Rollback failures requiring manual intervention
	ActivePositions     prometheus.Gauge     // Number of open positions, as of last sync
	ToolInvocations     prometheus.Counter   // Total LLM tool calls dispatched
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, for test
// isolation from the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_cycles_total",
			Help: "Total number of scheduler cycles run",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "agent_cycle_duration_seconds",
			Help:    "Duration of a full cycle across all symbols",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		OrdersTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_orders_total",
			Help: "Total number of orders placed",
		}),
		OrderRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_order_retries_total",
			Help: "Total number of protected-order protocol retry attempts",
		}),
		OrderRollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_order_rollbacks_total",
			Help: "Total number of rollbacks triggered by stop-loss placement failure",
		}),
		ManualInterventions: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_manual_interventions_total",
			Help: "Total number of rollback failures requiring manual intervention",
		}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agent_active_positions",
			Help: "Number of open positions as of the last sync",
		}),
		ToolInvocations: factory.NewCounter(prometheus.CounterOpts{
			Name: "agent_tool_invocations_total",
			Help: "Total number of LLM tool calls dispatched",
		}),
	}
}
