package geo

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricLookupsTotal = "geo_lookups_total"
)

// Result label values for MetricLookupsTotal.
const (
	LookupCacheHit       = "cache_hit"
	LookupResolved       = "resolved"
	LookupSkipped        = "skipped"
	LookupQuotaExhausted = "quota_exhausted"
	LookupError          = "error"
)

// Metrics contains Prometheus metrics for geolocation resolution.
type Metrics struct {
	lookupsTotal *prometheus.CounterVec
}

// NewMetrics creates the geolocation metrics. They are not registered;
// call Register to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		lookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLookupsTotal,
				Help: "Total number of geolocation resolutions by result",
			},
			[]string{"result"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.lookupsTotal)
}

// IncLookup counts one resolution with the given result.
func (m *Metrics) IncLookup(result string) {
	m.lookupsTotal.WithLabelValues(result).Inc()
}
