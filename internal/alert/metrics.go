package alert

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/vigil/internal/audit"
)

// Metric names as constants for consistency.
const (
	MetricAlertsTotal        = "security_alerts_total"
	MetricNotificationsTotal = "alert_notifications_total"
)

// Outcome label values for MetricAlertsTotal.
const (
	OutcomeCreated = "created"
	OutcomeMerged  = "merged"
)

// Status label values for MetricNotificationsTotal.
const (
	NotifySent   = "sent"
	NotifyFailed = "failed"
)

// Metrics contains Prometheus metrics for alert aggregation.
type Metrics struct {
	alertsTotal        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
}

// NewMetrics creates the aggregation metrics. They are not registered;
// call Register to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricAlertsTotal,
				Help: "Total number of alert upserts by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		notificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricNotificationsTotal,
				Help: "Total number of admin notification attempts by status",
			},
			[]string{"status"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.alertsTotal); err != nil {
		return err
	}
	return reg.Register(m.notificationsTotal)
}

// IncAlert counts one upsert outcome.
func (m *Metrics) IncAlert(t audit.AlertType, outcome string) {
	m.alertsTotal.WithLabelValues(string(t), outcome).Inc()
}

// IncNotification counts one notification attempt.
func (m *Metrics) IncNotification(status string) {
	m.notificationsTotal.WithLabelValues(status).Inc()
}
