package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WarrantiesIssued    *prometheus.CounterVec
	WarrantyTransitions *prometheus.CounterVec
	JobTransitions      *prometheus.CounterVec
	LedgerOperations    *prometheus.CounterVec
	LedgerLatency       *prometheus.HistogramVec
	StatsLatency        *prometheus.HistogramVec
	PINChecks           *prometheus.CounterVec
	EventsPublished     *prometheus.CounterVec
	WAOutgoingMessages  *prometheus.CounterVec
	Errors              *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WarrantiesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warranties_issued_total",
				Help:      "Warranty issuance attempts by outcome.",
			}, []string{"outcome"}),
			WarrantyTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "warranty_status_changes_total",
				Help:      "Stored warranty status changes by target status.",
			}, []string{"to"}),
			JobTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_status_changes_total",
				Help:      "Job sheet status changes by source and target status.",
			}, []string{"from", "to"}),
			LedgerOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_operations_total",
				Help:      "Payment ledger operations by kind and status.",
			}, []string{"op", "status"}),
			LedgerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_operation_duration_seconds",
				Help:      "Latency of ledger append/delete including the advance recompute.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			StatsLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_duration_seconds",
				Help:      "Latency of dashboard statistics by cache outcome.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"cache"}),
			PINChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pin_checks_total",
				Help:      "Revenue PIN verifications by result.",
			}, []string{"result"}),
			EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events handed to the broker by type and status.",
			}, []string{"type", "status"}),
			WAOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_outgoing_messages_total",
				Help:      "Total outgoing WhatsApp messages sent.",
			}, []string{"type"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WarrantiesIssued,
			metricsInstance.WarrantyTransitions,
			metricsInstance.JobTransitions,
			metricsInstance.LedgerOperations,
			metricsInstance.LedgerLatency,
			metricsInstance.StatsLatency,
			metricsInstance.PINChecks,
			metricsInstance.EventsPublished,
			metricsInstance.WAOutgoingMessages,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

// IncError counts an error for component. Safe on a nil receiver.
func (m *Metrics) IncError(component string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(component).Inc()
}
