// Package orchestrator executes the cascading deletion/anonymization plan
// for one subject: primary store first in referential order, then every
// secondary system, writing one audit entry per step before moving on.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/locator"
	"lethe/internal/erasure/metrics"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/systems"
	dErrors "lethe/pkg/domain-errors"
)

const defaultStepTimeout = 30 * time.Second

// Orchestrator fans one deletion request out across every system holding
// subject data. It never reports success it did not observe: each step's
// outcome is recorded individually so a retry can skip clean systems.
type Orchestrator struct {
	locator     *locator.Locator
	secondaries []systems.SecondarySystem
	ledger      *auditlog.Ledger
	logger      *slog.Logger
	metrics     *metrics.Metrics
	stepTimeout time.Duration
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStepTimeout bounds each external-system call. A timeout is a step
// failure, never a hung batch.
func WithStepTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.stepTimeout = timeout
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// New constructs an Orchestrator over the locator, the injected secondary
// systems, and the audit ledger.
func New(loc *locator.Locator, secondaries []systems.SecondarySystem, ledger *auditlog.Ledger, opts ...Option) (*Orchestrator, error) {
	if loc == nil || ledger == nil {
		return nil, fmt.Errorf("locator and ledger are required")
	}
	o := &Orchestrator{
		locator:     loc,
		secondaries: secondaries,
		ledger:      ledger,
		logger:      slog.Default(),
		stepTimeout: defaultStepTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// Execute runs the full cascade for one claimed request. It never returns
// an error: every failure is captured in the DeletionResult so the caller
// can transition the request and surface exactly what remains dirty.
// Audit entries for step N are written before step N+1 begins.
func (o *Orchestrator) Execute(ctx context.Context, request *models.DeletionRequest) *models.DeletionResult {
	result := &models.DeletionResult{
		RequestID: request.ID.String(),
		SubjectID: request.SubjectID.String(),
		Outcomes:  make(map[models.SystemType]models.StepOutcome),
	}

	primary := o.erasePrimary(ctx, request)
	result.Outcomes[models.SystemPrimaryStore] = primary
	if primary.Status == models.StepFailed {
		// Primary-store consistency cannot be partially satisfied: the
		// request fails immediately and untouched systems stay unreported
		// so a retry re-runs them.
		return result
	}

	for _, system := range o.secondaries {
		if err := ctx.Err(); err != nil {
			result.Outcomes[system.Type()] = models.Skipped("execution cancelled")
			continue
		}
		outcome := o.eraseSecondary(ctx, request, system)
		result.Outcomes[system.Type()] = outcome
	}
	return result
}

// erasePrimary walks the dependency-ordered plan: preserve-for-audit tables
// are anonymized in place, everything else is hard-deleted, children
// strictly before the subject identity row.
func (o *Orchestrator) erasePrimary(ctx context.Context, request *models.DeletionRequest) models.StepOutcome {
	locations, err := o.locator.Locate(ctx, request.SubjectID)
	if err != nil {
		failure := models.Failed(dErrors.Wrap(err, dErrors.CodeIrrecoverable,
			fmt.Sprintf("locating subject records failed: %v", err)))
		o.ledger.RecordStep(ctx, request.ID, request.SubjectID, models.AuditOpHardDelete, models.SystemPrimaryStore, "", failure)
		return failure
	}

	totalAffected := 0
	for _, location := range locations {
		operation := models.AuditOpHardDelete
		erase := o.locator.Primary().DeleteBySubject
		if location.PreserveForAudit {
			operation = models.AuditOpAnonymizeInPlace
			erase = o.locator.Primary().AnonymizeBySubject
		}

		affected, err := o.withTimeout(ctx, func(stepCtx context.Context) (int, error) {
			return erase(stepCtx, location.Table, request.SubjectID)
		})
		outcome := models.Success(affected)
		if err != nil {
			outcome = models.Failed(dErrors.Wrap(err, dErrors.CodeIrrecoverable,
				fmt.Sprintf("primary store erase failed on %s: %v", location.Table, err)))
		}
		o.ledger.RecordStep(ctx, request.ID, request.SubjectID, operation, models.SystemPrimaryStore, location.Table, outcome)
		if err != nil {
			o.logger.ErrorContext(ctx, "primary store erase failed",
				"request_id", request.ID,
				"table", location.Table,
				"error", err,
			)
			return outcome
		}
		totalAffected += affected
	}
	return models.Success(totalAffected)
}

// eraseSecondary runs one system's erase step. A failure here is transient:
// it is audited, reported, and left for the request-level retry; the
// remaining systems still run.
func (o *Orchestrator) eraseSecondary(ctx context.Context, request *models.DeletionRequest, system systems.SecondarySystem) models.StepOutcome {
	start := time.Now()
	affected, err := o.withTimeout(ctx, func(stepCtx context.Context) (int, error) {
		return system.Erase(stepCtx, request.SubjectID)
	})
	if o.metrics != nil {
		o.metrics.SystemEraseLatency.WithLabelValues(string(system.Type())).Observe(time.Since(start).Seconds())
	}

	outcome := models.Success(affected)
	if err != nil {
		code := dErrors.CodeTransientSystem
		if errors.Is(err, context.DeadlineExceeded) {
			code = dErrors.CodeTimeout
		}
		outcome = models.Failed(dErrors.Wrap(err, code,
			fmt.Sprintf("%s erase failed: %v", system.Type(), err)))
		o.logger.WarnContext(ctx, "secondary system erase failed",
			"request_id", request.ID,
			"system", system.Type(),
			"error", err,
		)
	}
	o.ledger.RecordStep(ctx, request.ID, request.SubjectID, operationFor(system.Type()), system.Type(), "", outcome)
	return outcome
}

func (o *Orchestrator) withTimeout(ctx context.Context, step func(context.Context) (int, error)) (int, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()
	return step(stepCtx)
}

func operationFor(system models.SystemType) string {
	switch system {
	case models.SystemCache:
		return models.AuditOpCachePurge
	case models.SystemLogs:
		return models.AuditOpLogRedaction
	case models.SystemBackups:
		return models.AuditOpBackupRewrite
	case models.SystemPayment:
		return models.AuditOpExternalDelete
	}
	return models.AuditOpHardDelete
}
