package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the stock and order collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	StockOperations      *prometheus.CounterVec
	AggregationConflicts prometheus.Counter
	AggregationDrift     prometheus.Counter
	OrdersProcessed      *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StockOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fitfast_stock_operations_total",
			Help: "Stock ledger operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		AggregationConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "fitfast_aggregation_conflicts_total",
			Help: "Aggregation refreshes superseded by a newer stock mutation",
		}),
		AggregationDrift: factory.NewCounter(prometheus.CounterOpts{
			Name: "fitfast_aggregation_drift_total",
			Help: "Integrity checks that found roll-ups disagreeing with variant stock",
		}),
		OrdersProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fitfast_orders_processed_total",
			Help: "Orders persisted, rolled back or restocked, by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) StockOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.StockOperations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) AggregationConflict() {
	if m == nil {
		return
	}
	m.AggregationConflicts.Inc()
}

func (m *Metrics) Drift() {
	if m == nil {
		return
	}
	m.AggregationDrift.Inc()
}

func (m *Metrics) OrderProcessed(outcome string) {
	if m == nil {
		return
	}
	m.OrdersProcessed.WithLabelValues(outcome).Inc()
}
