package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EngineMetrics struct {
	operations       *prometheus.CounterVec
	healthRejections prometheus.Counter
	collateralPrice  *prometheus.GaugeVec
	journalFailures  prometheus.Counter
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the process-wide issuance metrics registry.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "stablemint_operations_total",
				Help: "Count of engine operations by kind and outcome.",
			}, []string{"kind", "status"}),
			healthRejections: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stablemint_health_rejections_total",
				Help: "Count of operations rejected by the solvency check.",
			}),
			collateralPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "stablemint_collateral_price_usd",
				Help: "Last observed collateral price in USD by asset.",
			}, []string{"asset"}),
			journalFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stablemint_journal_failures_total",
				Help: "Count of failed journal writes.",
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.healthRejections,
			engineRegistry.collateralPrice,
			engineRegistry.journalFailures,
		)
	})
	return engineRegistry
}

func (m *EngineMetrics) ObserveOperation(kind, status string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	m.operations.WithLabelValues(kind, status).Inc()
}

func (m *EngineMetrics) ObserveHealthRejection() {
	if m == nil {
		return
	}
	m.healthRejections.Inc()
}

func (m *EngineMetrics) SetCollateralPrice(asset string, usd float64) {
	if m == nil {
		return
	}
	normalized := strings.ToUpper(strings.TrimSpace(asset))
	if normalized == "" {
		normalized = "UNKNOWN"
	}
	m.collateralPrice.WithLabelValues(normalized).Set(usd)
}

func (m *EngineMetrics) IncJournalFailure() {
	if m == nil {
		return
	}
	m.journalFailures.Inc()
}
