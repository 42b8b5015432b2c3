package gossip

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "gossip"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of topics the node is subscribed to.
	Topics metrics.Gauge
	// Number of intents received and handed on, by topic.
	IntentsReceived metrics.Counter
	// Number of intents published by this node.
	IntentsPublished metrics.Counter
	// Number of received messages dropped, by reason.
	DeliveryFailures metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Topics: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "topics",
			Help:      "Number of subscribed topics.",
		}, []string{}),
		IntentsReceived: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "intents_received",
			Help:      "Number of valid intents received.",
		}, []string{"topic"}),
		IntentsPublished: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "intents_published",
			Help:      "Number of intents published by this node.",
		}, []string{}),
		DeliveryFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "delivery_failures",
			Help:      "Number of received messages dropped, by reason.",
		}, []string{"reason"}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Topics:           discard.NewGauge(),
		IntentsReceived:  discard.NewCounter(),
		IntentsPublished: discard.NewCounter(),
		DeliveryFailures: discard.NewCounter(),
	}
}
