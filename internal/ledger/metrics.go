package ledger

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "ledger"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the last committed block.
	Height metrics.Gauge
	// Number of transactions by final pipeline state.
	Txs metrics.Counter
	// Gas used by transaction code.
	TxGasUsed metrics.Histogram
	// Number of validity predicate runs, by outcome.
	PredicateRuns metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Height of the last committed block.",
		}, []string{}),
		Txs: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "txs",
			Help:      "Number of delivered transactions by final state.",
		}, []string{"state"}),
		TxGasUsed: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "tx_gas_used",
			Help:      "Gas used by transaction code.",
			Buckets:   stdprometheus.ExponentialBuckets(100, 4, 10),
		}, []string{}),
		PredicateRuns: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "predicate_runs",
			Help:      "Number of validity predicate evaluations by outcome.",
		}, []string{"accepted"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:        discard.NewGauge(),
		Txs:           discard.NewCounter(),
		TxGasUsed:     discard.NewHistogram(),
		PredicateRuns: discard.NewCounter(),
	}
}
