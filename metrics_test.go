package reactor

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestMetricsSet_RegisterIsIdempotentAndNilSafe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsSet("engine-1")

	m.register(reg)
	m.register(reg) // re-registration must not panic or error out

	var nilSet *metricsSet
	nilSet.register(reg) // nil receiver is a no-op
}

func TestMetricsSet_ComputeTotalIncrementsPerNode(t *testing.T) {
	m := newMetricsSet("engine-1")
	m.computeTotal.WithLabelValues("engine-1", "node-a").Inc()
	m.computeTotal.WithLabelValues("engine-1", "node-a").Inc()

	var metric dto.Metric
	require.NoError(t, m.computeTotal.WithLabelValues("engine-1", "node-a").Write(&metric))
	require.Equal(t, 2.0, metric.GetCounter().GetValue())
}
