package detect

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/onnwee/vigil/internal/audit"
)

// Metric names as constants for consistency.
const (
	MetricFindingsTotal       = "detector_findings_total"
	MetricDetectorErrorsTotal = "detector_errors_total"
)

// Metrics contains Prometheus metrics for anomaly detection.
type Metrics struct {
	findingsTotal  *prometheus.CounterVec
	detectorErrors *prometheus.CounterVec
}

// NewMetrics creates the detector metrics. They are not registered;
// call Register to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		findingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFindingsTotal,
				Help: "Total number of detector findings by type",
			},
			[]string{"type"},
		),
		detectorErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricDetectorErrorsTotal,
				Help: "Total number of detector query failures by type",
			},
			[]string{"type"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.findingsTotal); err != nil {
		return err
	}
	return reg.Register(m.detectorErrors)
}

// IncFinding counts one emitted finding.
func (m *Metrics) IncFinding(t audit.AlertType) {
	m.findingsTotal.WithLabelValues(string(t)).Inc()
}

// IncDetectorError counts one failed detector run.
func (m *Metrics) IncDetectorError(t audit.AlertType) {
	m.detectorErrors.WithLabelValues(string(t)).Inc()
}
