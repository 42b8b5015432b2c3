package matchmaker

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "matchmaker"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of unmatched intents in the working set.
	Pending metrics.Gauge
	// Number of intents dropped before matching, by reason.
	DroppedIntents metrics.Counter
	// Number of matches found.
	Matches metrics.Counter
	// Number of crafted txs the ledger rejected.
	FailedSubmissions metrics.Counter
	// Number of crafted txs still uncommitted when the wait ended.
	UnconfirmedSubmissions metrics.Counter
	// Time to craft and commit a matched pair.
	SubmitDuration metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Pending: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending",
			Help:      "Number of unmatched intents.",
		}, labels).With(labelsAndValues...),
		DroppedIntents: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_intents",
			Help:      "Number of intents dropped before matching.",
		}, append(labels, "reason")).With(labelsAndValues...),
		Matches: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "matches",
			Help:      "Number of matched intent pairs.",
		}, labels).With(labelsAndValues...),
		FailedSubmissions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "failed_submissions",
			Help:      "Number of matched pairs whose tx was rejected.",
		}, labels).With(labelsAndValues...),
		UnconfirmedSubmissions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "unconfirmed_submissions",
			Help:      "Number of matched pairs whose tx was not committed in time.",
		}, labels).With(labelsAndValues...),
		SubmitDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "submit_duration_seconds",
			Help:      "Time between finding a match and its commit.",
			Buckets:   stdprometheus.ExponentialBuckets(0.01, 2, 12),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Pending:                discard.NewGauge(),
		DroppedIntents:         discard.NewCounter(),
		Matches:                discard.NewCounter(),
		FailedSubmissions:      discard.NewCounter(),
		UnconfirmedSubmissions: discard.NewCounter(),
		SubmitDuration:         discard.NewHistogram(),
	}
}
