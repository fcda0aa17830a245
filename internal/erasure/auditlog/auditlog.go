// Package auditlog is the append-only ledger of every system-level
// operation the orchestrator performs. It is independent of the request
// store and written even on failure: the trail must survive the very
// deletion it records.
package auditlog

import (
	"context"
	"log/slog"
	"time"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// Store persists audit entries. Append-only: entries are never deleted and
// the only permitted update is the terminal anonymization rewrite, which is
// partitioned by request id and therefore non-contending.
type Store interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.AuditLogEntry, error)
	// CountRawRefs counts entries still holding the raw subject reference.
	// The verifier treats these as primary-store residue.
	CountRawRefs(ctx context.Context, subjectID id.SubjectID) (int, error)
	// AnonymizeByRequest replaces the raw subject reference with the
	// anonymized form on every entry of the request, recomputing the
	// integrity hash. Returns the number of rewritten entries.
	AnonymizeByRequest(ctx context.Context, requestID id.RequestID, anonymizedRef string) (int, error)
	CountAll(ctx context.Context) (int, error)
}

// FailureCounter receives audit write failures for operational alerting.
// A missing audit entry is an ops problem, never a deletion blocker.
type FailureCounter interface {
	IncAuditWriteFailures()
}

// Ledger is the write path used by the orchestrator and scheduler.
type Ledger struct {
	store   Store
	logger  *slog.Logger
	metrics FailureCounter
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithLogger sets the secondary channel for reporting audit write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithFailureCounter sets the metrics sink for audit write failures.
func WithFailureCounter(m FailureCounter) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New constructs a Ledger over the given store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Record appends one entry, stamping the timestamp and integrity hash.
// It never surfaces a sink failure to the caller: the deletion being
// documented proceeds, and the gap is reported on the secondary channel.
func (l *Ledger) Record(ctx context.Context, entry *models.AuditLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.IntegrityHash = entry.ComputeIntegrityHash()
	if err := l.store.Append(ctx, entry); err != nil {
		l.logger.ErrorContext(ctx, "audit entry write failed",
			"request_id", entry.RequestID,
			"operation", entry.Operation,
			"system", entry.SystemType,
			"error", err,
		)
		if l.metrics != nil {
			l.metrics.IncAuditWriteFailures()
		}
	}
}

// RecordStep appends the audit entry for one orchestrator step outcome.
func (l *Ledger) RecordStep(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID, operation string, system models.SystemType, resource string, outcome models.StepOutcome) {
	l.Record(ctx, &models.AuditLogEntry{
		RequestID:       requestID,
		SubjectRef:      string(subjectID),
		Operation:       operation,
		SystemType:      system,
		TableOrResource: resource,
		RecordsAffected: outcome.RecordsAffected,
		Success:         outcome.Succeeded(),
		ErrorMessage:    outcome.ErrorMessage(),
	})
}

// AnonymizeRequestEntries rewrites the request's entries to carry only the
// anonymized subject reference. Called on the terminal transition.
func (l *Ledger) AnonymizeRequestEntries(ctx context.Context, requestID id.RequestID, subjectID id.SubjectID) (int, error) {
	return l.store.AnonymizeByRequest(ctx, requestID, models.AnonymizeSubjectRef(subjectID))
}

// ListByRequest exposes the request's trail for reporting and tests.
func (l *Ledger) ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.AuditLogEntry, error) {
	return l.store.ListByRequest(ctx, requestID)
}

// CountRawRefs counts entries still referencing the raw subject id.
func (l *Ledger) CountRawRefs(ctx context.Context, subjectID id.SubjectID) (int, error) {
	return l.store.CountRawRefs(ctx, subjectID)
}
