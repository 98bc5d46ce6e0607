// Package metrics registers the prometheus counters the broker and the
// integration publisher report into.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the counters for event propagation observability.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsPublished  prometheus.Counter
	eventsDropped    prometheus.Counter
	recordsDelivered prometheus.Counter
	deliveryRetries  prometheus.Counter
	deliveryGaps     prometheus.Counter
}

// New registers the counters on the supplied registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		eventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_events_published_total",
			Help: "Domain events accepted by the in-process broker.",
		}),
		eventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_events_dropped_total",
			Help: "Domain events dropped for slow subscribers under the capped buffer policy.",
		}),
		recordsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_integration_records_delivered_total",
			Help: "Integration records acknowledged by the external broker.",
		}),
		deliveryRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_integration_delivery_retries_total",
			Help: "Integration record send attempts beyond the first.",
		}),
		deliveryGaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "tracker_integration_delivery_gaps_total",
			Help: "Integration records abandoned after exhausting the retry budget.",
		}),
	}
}

// EventPublished records a broker publish.
func (m *Metrics) EventPublished() {
	if m != nil {
		m.eventsPublished.Inc()
	}
}

// EventDropped records a drop for a slow subscriber.
func (m *Metrics) EventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

// RecordDelivered records an acknowledged external send.
func (m *Metrics) RecordDelivered() {
	if m != nil {
		m.recordsDelivered.Inc()
	}
}

// DeliveryRetried records a retried external send.
func (m *Metrics) DeliveryRetried() {
	if m != nil {
		m.deliveryRetries.Inc()
	}
}

// DeliveryGap records an abandoned delivery.
func (m *Metrics) DeliveryGap() {
	if m != nil {
		m.deliveryGaps.Inc()
	}
}
