package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	blocks          *prometheus.CounterVec
	transactions    *prometheus.CounterVec
	notifications   prometheus.Counter
	classifyErrors  prometheus.Counter
	phaseDuration   *prometheus.HistogramVec
	lastBlockNumber prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	const namespace, subsystem = "indexer", "pipeline"

	return &metrics{
		blocks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_total",
			Help:      "Blocks processed by result",
		}, []string{"result"}),
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transactions_total",
			Help:      "Classified transactions by type",
		}, []string{"type"}),
		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_total",
			Help:      "Records handed to the observer registry",
		}),
		classifyErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "classification_errors_total",
			Help:      "Transactions skipped because classification failed",
		}),
		phaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "phase_duration_seconds",
			Help:      "Duration of pipeline phases",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		lastBlockNumber: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_block_number",
			Help:      "Number of the last successfully processed block",
		}),
	}
}
