package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cursor            prometheus.Gauge
	networkHead       prometheus.Gauge
	lag               prometheus.Gauge
	backfillSize      prometheus.Gauge
	healthy           prometheus.Gauge
	cycles            *prometheus.CounterVec
	attempts          *prometheus.CounterVec
	backfillEvictions prometheus.Counter
	stateWriteErrors  prometheus.Counter
	headErrors        prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	const namespace, subsystem = "indexer", "sync"

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &metrics{
		cursor:       gauge("cursor_block", "Last block durably processed"),
		networkHead:  gauge("network_head_block", "Last observed network head"),
		lag:          gauge("lag_blocks", "Network head minus cursor"),
		backfillSize: gauge("backfill_queue_size", "Blocks waiting to be reprocessed"),
		healthy:      gauge("healthy", "1 when lag and backfill are below their thresholds"),
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cycles_total",
			Help:      "Sync cycles by mode",
		}, []string{"mode"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Block processing attempts by source and result",
		}, []string{"source", "result"}),
		backfillEvictions: counter("backfill_evictions_total", "Backfill entries dropped because the queue was full"),
		stateWriteErrors:  counter("state_write_errors_total", "Failed sync state writes"),
		headErrors:        counter("head_errors_total", "Failed network head queries"),
	}
}
