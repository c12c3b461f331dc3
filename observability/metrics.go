package observability

import (
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// PoolMetrics captures counters and gauges for pool engine activity.
type PoolMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	free       *prometheus.GaugeVec
	borrowed   *prometheus.GaugeVec
	usdBalance prometheus.Gauge
}

// Pool returns the lazily-initialised singleton metrics registry for the
// pool engine and its daemon surface.
func Pool() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "operations_total",
				Help:      "Count of pool operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for pool operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "errors_total",
				Help:      "Count of pool operation failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			free: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "free_collateral",
				Help:      "Free collateral balance per collateral symbol, native smallest units.",
			}, []string{"symbol"}),
			borrowed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "borrowed_collateral",
				Help:      "Outstanding amo-borrowed collateral per symbol, native smallest units.",
			}, []string{"symbol"}),
			usdBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dollarpool",
				Subsystem: "pool",
				Name:      "collateral_usd_balance",
				Help:      "Total collateral value, pool-held plus amo-reported, at 18 decimals.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.operations,
			poolRegistry.latency,
			poolRegistry.errors,
			poolRegistry.free,
			poolRegistry.borrowed,
			poolRegistry.usdBalance,
		)
	})
	return poolRegistry
}

// Observe records the execution of one pool operation. A non-empty reason
// marks the operation failed and increments the errors counter. Reasons must
// come from a bounded vocabulary, never raw error text, to keep label
// cardinality finite.
func (m *PoolMetrics) Observe(operation string, duration time.Duration, reason string) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if reason = strings.TrimSpace(reason); reason != "" {
		outcome = "error"
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordFree updates the free-collateral gauge for a symbol.
func (m *PoolMetrics) RecordFree(symbol string, free *big.Int) {
	if m == nil {
		return
	}
	m.free.WithLabelValues(labelSymbol(symbol)).Set(bigToFloat(free))
}

// RecordBorrowed updates the borrowed-collateral gauge for a symbol.
func (m *PoolMetrics) RecordBorrowed(symbol string, borrowed *big.Int) {
	if m == nil {
		return
	}
	m.borrowed.WithLabelValues(labelSymbol(symbol)).Set(bigToFloat(borrowed))
}

// RecordUsdBalance updates the aggregate collateral valuation gauge.
func (m *PoolMetrics) RecordUsdBalance(value *big.Int) {
	if m == nil {
		return
	}
	m.usdBalance.Set(bigToFloat(value))
}

func labelSymbol(symbol string) string {
	trimmed := strings.TrimSpace(symbol)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
