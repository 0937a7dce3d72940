package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.CyclesTotal.Inc()
	m.OrdersTotal.Inc()
	m.OrderRetries.Inc()
	m.OrderRollbacks.Inc()
	m.ManualInterventions.Inc()
	m.ActivePositions.Set(3)
	m.ToolInvocations.Inc()
	m.CycleDuration.Observe(0.25)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	require.Equal(t, float64(1), byName["agent_cycles_total"].Metric[0].Counter.GetValue())
	require.Equal(t, float64(1), byName["agent_orders_total"].Metric[0].Counter.GetValue())
	require.Equal(t, float64(3), byName["agent_active_positions"].Metric[0].Gauge.GetValue())
}

func TestNewWithRegistryAcceptsFreshRegistry(t *testing.T) {
	require.NotPanics(t, func() {
		reg := prometheus.NewRegistry()
		NewWithRegistry(reg)
	})
}
