package observability

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for the vault service. Registration is lazy so tests and tools can
// import the package without double-registering collectors.

type VaultMetricsRegistry struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	pool       *prometheus.GaugeVec
	reserved   *prometheus.GaugeVec
	usdg       *prometheus.GaugeVec
	feeReserve *prometheus.GaugeVec
}

var (
	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetricsRegistry
)

// VaultMetrics returns the lazily-initialised vault metrics registry.
func VaultMetrics() *VaultMetricsRegistry {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetricsRegistry{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "perpvault",
				Subsystem: "vault",
				Name:      "operations_total",
				Help:      "Total vault operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "perpvault",
				Subsystem: "vault",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for vault operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			pool: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "perpvault",
				Subsystem: "vault",
				Name:      "pool_amount",
				Help:      "Pool amount per token in native units.",
			}, []string{"token"}),
			reserved: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "perpvault",
				Subsystem: "vault",
				Name:      "reserved_amount",
				Help:      "Reserved amount per token in native units.",
			}, []string{"token"}),
			usdg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "perpvault",
				Subsystem: "vault",
				Name:      "usdg_amount",
				Help:      "USDG debt per token at 18 decimals.",
			}, []string{"token"}),
			feeReserve: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "perpvault",
				Subsystem: "vault",
				Name:      "fee_reserve",
				Help:      "Accumulated fee reserve per token in native units.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.latency,
			vaultRegistry.pool,
			vaultRegistry.reserved,
			vaultRegistry.usdg,
			vaultRegistry.feeReserve,
		)
	})
	return vaultRegistry
}

// ObserveOperation records one operation's outcome and duration.
func (m *VaultMetricsRegistry) ObserveOperation(operation string, err error, started time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// SetPoolGauges refreshes the per-token ledger gauges.
func (m *VaultMetricsRegistry) SetPoolGauges(token string, pool, reserved, usdg, feeReserve *big.Int) {
	m.pool.WithLabelValues(token).Set(bigFloat(pool))
	m.reserved.WithLabelValues(token).Set(bigFloat(reserved))
	m.usdg.WithLabelValues(token).Set(bigFloat(usdg))
	m.feeReserve.WithLabelValues(token).Set(bigFloat(feeReserve))
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
