package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for the deletion lifecycle engine.
type Metrics struct {
	RequestsCreated    prometheus.Counter
	RequestsCompleted  prometheus.Counter
	RequestsFailed     prometheus.Counter
	RequestsCancelled  prometheus.Counter
	OverdueRequests    prometheus.Gauge
	ClaimConflicts     prometheus.Counter
	AuditWriteFailures prometheus.Counter
	CertificatesIssued *prometheus.CounterVec
	AlertsRaised       *prometheus.CounterVec

	SchedulerRunDuration prometheus.Histogram
	SystemEraseLatency   *prometheus.HistogramVec
	VerificationScore    prometheus.Histogram
}

// New registers and returns engine metrics collectors.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lethe_deletion_requests_created_total",
			Help: "Total number of deletion requests created",
		}),
		RequestsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lethe_deletion_requests_completed_total",
			Help: "Total number of deletion requests completed with a certificate",
		}),
		RequestsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lethe_deletion_requests_failed_total",
			Help: "Total number of deletion request executions that failed",
		}),
		RequestsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lethe_deletion_requests_cancelled_total",
			Help: "Total number of deletion requests cancelled while pending",
		}),
		OverdueRequests: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "lethe_deletion_requests_overdue",
			Help: "Current number of pending requests past their legal deadline",
		}),
		ClaimConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lethe_scheduler_claim_conflicts_total",
			Help: "Total number of claims lost to a concurrent scheduler run",
		}),
		AuditWriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lethe_audit_write_failures_total",
			Help: "Total number of audit ledger writes that failed",
		}),
		CertificatesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lethe_certificates_issued_total",
			Help: "Total number of deletion certificates issued, labeled by compliance",
		}, []string{"compliant"}),
		AlertsRaised: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "lethe_deadline_alerts_total",
			Help: "Total number of deadline compliance alerts raised, labeled by severity",
		}, []string{"severity"}),
		SchedulerRunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lethe_scheduler_run_duration_seconds",
			Help:    "Duration of scheduler runs in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		SystemEraseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lethe_system_erase_latency_seconds",
			Help:    "Latency of per-system erase steps in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"system"}),
		VerificationScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "lethe_verification_overall_score",
			Help:    "Distribution of verification overall scores",
			Buckets: []float64{0, 20, 40, 60, 80, 90, 95, 99, 100},
		}),
	}
}

// IncAuditWriteFailures satisfies the audit ledger's failure counter.
func (m *Metrics) IncAuditWriteFailures() {
	m.AuditWriteFailures.Inc()
}
