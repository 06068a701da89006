package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StockOperation("decrement", "ok")
	m.StockOperation("decrement", "ok")
	m.StockOperation("decrement", "insufficient")
	m.AggregationConflict()
	m.Drift()
	m.OrderProcessed("saved")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StockOperations.WithLabelValues("decrement", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StockOperations.WithLabelValues("decrement", "insufficient")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AggregationDrift))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersProcessed.WithLabelValues("saved")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StockOperation("decrement", "ok")
		m.AggregationConflict()
		m.Drift()
		m.OrderProcessed("saved")
	})
}
