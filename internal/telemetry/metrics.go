package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Бакеты длительностей узлов: от быстрых локальных стадий до минутных
// обращений к внешним сервисам.
var nodeDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Metrics — Prometheus-инструменты платформы верификации.
type Metrics struct {
	// Workflows
	WorkflowsStarted   prometheus.Counter
	WorkflowsCompleted *prometheus.CounterVec // label: status
	WorkflowsActive    prometheus.Gauge
	DuplicatesDropped  prometheus.Counter

	// Nodes
	NodeAttemptsTotal *prometheus.CounterVec // labels: node, outcome
	NodeDuration      *prometheus.HistogramVec
	NodeErrorsTotal   *prometheus.CounterVec // labels: node, kind

	// Bus
	MessagesConsumed  *prometheus.CounterVec // label: queue
	MessagesPublished *prometheus.CounterVec // label: exchange
	DLQRoutedTotal    prometheus.Counter

	// Review
	ReviewRequested prometheus.Counter
	ReviewDecisions *prometheus.CounterVec // label: decision
	ReviewReminders prometheus.Counter

	// Observer
	ObserverConnections prometheus.Gauge
	ObserverDropped     prometheus.Counter
}

// InitMetrics создаёт и регистрирует все инструменты.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WorkflowsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisislens_workflows_started_total",
			Help: "Workflows claimed from raw-items.",
		}),
		WorkflowsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crisislens_workflows_finished_total",
			Help: "Workflows that reached a terminal status.",
		}, []string{"status"}),
		WorkflowsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crisislens_workflows_active",
			Help: "Workflows currently owned by this process.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisislens_duplicates_dropped_total",
			Help: "raw-items deliveries acknowledged as duplicates.",
		}),

		NodeAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crisislens_node_attempts_total",
			Help: "Node executions by outcome (ok, error).",
		}, []string{"node", "outcome"}),
		NodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crisislens_node_duration_seconds",
			Help:    "Wall-clock duration of node executions.",
			Buckets: nodeDurationBuckets,
		}, []string{"node"}),
		NodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crisislens_node_errors_total",
			Help: "Node errors by taxonomy kind.",
		}, []string{"node", "kind"}),

		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crisislens_bus_consumed_total",
			Help: "Messages consumed per queue.",
		}, []string{"queue"}),
		MessagesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crisislens_bus_published_total",
			Help: "Messages published per exchange.",
		}, []string{"exchange"}),
		DLQRoutedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisislens_dlq_routed_total",
			Help: "Messages routed to the dead letter queue.",
		}),

		ReviewRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisislens_review_requested_total",
			Help: "Workflows parked for human review.",
		}),
		ReviewDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crisislens_review_decisions_total",
			Help: "Operator decisions by kind.",
		}, []string{"decision"}),
		ReviewReminders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisislens_review_reminders_total",
			Help: "Reminder alerts for overdue reviews.",
		}),

		ObserverConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crisislens_observer_connections",
			Help: "Active observer plane subscribers.",
		}),
		ObserverDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crisislens_observer_dropped_total",
			Help: "Events dropped due to subscriber backpressure.",
		}),
	}

	reg.MustRegister(
		m.WorkflowsStarted, m.WorkflowsCompleted, m.WorkflowsActive, m.DuplicatesDropped,
		m.NodeAttemptsTotal, m.NodeDuration, m.NodeErrorsTotal,
		m.MessagesConsumed, m.MessagesPublished, m.DLQRoutedTotal,
		m.ReviewRequested, m.ReviewDecisions, m.ReviewReminders,
		m.ObserverConnections, m.ObserverDropped,
	)

	return m
}

// NewMetrics создаёт инструменты на выделенном реестре (для тестов).
func NewMetrics() *Metrics {
	return InitMetrics(prometheus.NewRegistry())
}
