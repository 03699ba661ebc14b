package observer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "indexer"
	metricsSubsystem = "observer"
)

// Delivery outcomes
const (
	outcomeDelivered = "delivered"
	outcomeFailed    = "failed"
	outcomePanicked  = "panicked"
	outcomeDropped   = "dropped"
)

type metrics struct {
	deliveries      *prometheus.CounterVec
	handlerDuration *prometheus.HistogramVec
	mailboxDepth    *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "deliveries_total",
				Help:      "Total number of observer deliveries by outcome",
			},
			[]string{"observer", "outcome"},
		),
		handlerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "handler_duration_seconds",
				Help:      "Time spent in observer handlers",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"observer"},
		),
		mailboxDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "mailbox_depth",
				Help:      "Pending deliveries per observer mailbox",
			},
			[]string{"observer"},
		),
	}
}
