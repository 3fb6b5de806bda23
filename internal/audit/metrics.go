package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricEventsTotal = "audit_events_total"
)

// Result label values for MetricEventsTotal.
const (
	ResultRecorded = "recorded"
	ResultFailed   = "failed"
)

// Metrics contains Prometheus metrics for the audit pipeline.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
}

// NewMetrics creates the pipeline metrics. They are not registered;
// call Register to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricEventsTotal,
				Help: "Total number of audit events by action and result",
			},
			[]string{"action", "result"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.eventsTotal)
}

// IncEvent counts one processed event.
func (m *Metrics) IncEvent(action Action, result string) {
	m.eventsTotal.WithLabelValues(string(action), result).Inc()
}
