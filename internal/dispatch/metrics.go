package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricTasksTotal = "dispatch_tasks_total"
	MetricQueueDepth = "dispatch_queue_depth"
)

// Status label values for MetricTasksTotal.
const (
	TaskCompleted = "completed"
	TaskPanicked  = "panicked"
	TaskDropped   = "dropped"
)

// Metrics contains Prometheus metrics for the worker pool.
type Metrics struct {
	tasksTotal *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewMetrics creates the dispatch metrics. They are not registered;
// call Register to attach them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricTasksTotal,
				Help: "Total number of dispatched tasks by terminal status",
			},
			[]string{"status"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricQueueDepth,
				Help: "Number of tasks waiting for a worker",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.tasksTotal); err != nil {
		return err
	}
	return reg.Register(m.queueDepth)
}

// IncTask counts one task reaching a terminal status.
func (m *Metrics) IncTask(status string) {
	m.tasksTotal.WithLabelValues(status).Inc()
}

// SetQueueDepth records the current queue length.
func (m *Metrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
