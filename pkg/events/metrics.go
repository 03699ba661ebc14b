package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the EventBus
type Metrics struct {
	SubscribersTotal     prometheus.Gauge
	PublishChannelSize   prometheus.Gauge
	EventsPublishedTotal *prometheus.CounterVec
	EventsDeliveredTotal *prometheus.CounterVec
	EventsDroppedTotal   *prometheus.CounterVec
	EventsFilteredTotal  *prometheus.CounterVec
}

// NewMetrics creates the EventBus metrics on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	const namespace, subsystem = "indexer", "events"

	return &Metrics{
		SubscribersTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "subscribers_total",
			Help:      "Current number of active subscribers",
		}),
		PublishChannelSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "publish_channel_size",
			Help:      "Current size of the publish channel buffer",
		}),
		EventsPublishedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Total number of events published",
		}, []string{"event_type"}),
		EventsDeliveredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_delivered_total",
			Help:      "Total number of events delivered to subscribers",
		}, []string{"event_type"}),
		EventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped due to full channels",
		}, []string{"event_type"}),
		EventsFilteredTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_filtered_total",
			Help:      "Total number of events filtered out by subscriber filters",
		}, []string{"event_type"}),
	}
}

func (m *Metrics) recordPublished(t EventType) {
	if m != nil {
		m.EventsPublishedTotal.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) recordDelivered(t EventType) {
	if m != nil {
		m.EventsDeliveredTotal.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) recordDropped(t EventType) {
	if m != nil {
		m.EventsDroppedTotal.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) recordFiltered(t EventType) {
	if m != nil {
		m.EventsFilteredTotal.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) updateGauges(subscribers, pending int) {
	if m != nil {
		m.SubscribersTotal.Set(float64(subscribers))
		m.PublishChannelSize.Set(float64(pending))
	}
}
