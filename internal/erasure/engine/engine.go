// Package engine is the single entry point callers use to exercise the
// deletion lifecycle: intake, cancellation, status, on-demand execution,
// verification, certification and reporting. It translates store sentinels
// into coded domain errors exactly once, at this boundary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lethe/internal/erasure/alerts"
	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/certificate"
	"lethe/internal/erasure/metrics"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/report"
	"lethe/internal/erasure/scheduler"
	"lethe/internal/erasure/store"
	"lethe/internal/erasure/verifier"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
)

//go:generate mockgen -source=engine.go -destination=mocks/engine_mocks.go -package=mocks

// SubjectDirectory answers whether a subject is known to the platform.
// Intake rejects requests for subjects that never existed.
type SubjectDirectory interface {
	SubjectExists(ctx context.Context, subjectID id.SubjectID) (bool, error)
}

// Engine composes the lifecycle components behind one facade.
type Engine struct {
	store     store.Store
	subjects  SubjectDirectory
	scheduler *scheduler.Scheduler
	verifier  *verifier.Verifier
	issuer    *certificate.Issuer
	ledger    *auditlog.Ledger
	reporter  *report.Reporter
	notifier  *alerts.Notifier

	retentionWindow time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
	now             func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithNotifier attaches the compliance alert notifier.
func WithNotifier(n *alerts.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// New wires the Engine. retentionWindow is the fixed legal period between
// intake and the execution deadline.
func New(
	st store.Store,
	subjects SubjectDirectory,
	sched *scheduler.Scheduler,
	ver *verifier.Verifier,
	issuer *certificate.Issuer,
	ledger *auditlog.Ledger,
	reporter *report.Reporter,
	retentionWindow time.Duration,
	opts ...Option,
) (*Engine, error) {
	if st == nil || subjects == nil || sched == nil || ver == nil || issuer == nil || ledger == nil || reporter == nil {
		return nil, fmt.Errorf("all engine components are required")
	}
	if retentionWindow <= 0 {
		return nil, fmt.Errorf("retention window must be positive")
	}
	e := &Engine{
		store:           st,
		subjects:        subjects,
		scheduler:       sched,
		verifier:        ver,
		issuer:          issuer,
		ledger:          ledger,
		reporter:        reporter,
		retentionWindow: retentionWindow,
		logger:          slog.Default(),
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// CreateRequestParams carries intake input.
type CreateRequestParams struct {
	SubjectID id.SubjectID
	// InitiatedByUser distinguishes a data-subject request from an
	// administrative one; admin requests must name the acting operator.
	InitiatedByUser bool
	AdminActorID    *id.ActorID
	Reason          string
	Priority        models.Priority
}

func (p CreateRequestParams) validate() error {
	if p.SubjectID == "" {
		return domainerr.New(domainerr.CodeInvalidInput, "subject id is required")
	}
	if !p.InitiatedByUser && p.AdminActorID == nil {
		return domainerr.New(domainerr.CodeInvalidInput, "admin-initiated requests must name the acting operator")
	}
	if p.Priority != "" && !p.Priority.IsValid() {
		return domainerr.New(domainerr.CodeInvalidInput, "unknown priority")
	}
	return nil
}

// CreateRequest registers a new deletion request. The deadline is fixed at
// intake time plus the retention window and never changes afterwards. A
// subject may hold at most one active request.
func (e *Engine) CreateRequest(ctx context.Context, params CreateRequestParams) (*models.DeletionRequest, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	exists, err := e.subjects.SubjectExists(ctx, params.SubjectID)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "look up subject")
	}
	if !exists {
		return nil, domainerr.New(domainerr.CodeNotFound, "subject not found")
	}

	now := e.now()
	priority := params.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	request := &models.DeletionRequest{
		ID:              id.NewRequestID(),
		SubjectID:       params.SubjectID,
		Status:          models.StatusPending,
		InitiatedByUser: params.InitiatedByUser,
		AdminActorID:    params.AdminActorID,
		Reason:          params.Reason,
		Priority:        priority,
		RequestedAt:     now,
		Deadline:        now.Add(e.retentionWindow),
		UpdatedAt:       now,
	}
	if err := e.store.Create(ctx, request); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerr.Wrap(err, domainerr.CodeConflict, "subject already has an active deletion request")
		}
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "create deletion request")
	}

	if e.metrics != nil {
		e.metrics.RequestsCreated.Inc()
	}
	e.logger.InfoContext(ctx, "deletion request created",
		"request_id", request.ID,
		"deadline", request.Deadline,
		"user_initiated", request.InitiatedByUser,
	)
	return request, nil
}

// CancelRequest withdraws a pending request. Anything past pending is either
// already executing or already settled and cannot be cancelled.
func (e *Engine) CancelRequest(ctx context.Context, requestID id.RequestID) error {
	err := e.store.Transition(ctx, requestID, models.StatusPending, models.StatusCancelled, store.TransitionUpdate{})
	switch {
	case err == nil:
		if e.metrics != nil {
			e.metrics.RequestsCancelled.Inc()
		}
		e.logger.InfoContext(ctx, "deletion request cancelled", "request_id", requestID)
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return domainerr.Wrap(err, domainerr.CodeNotFound, "deletion request not found")
	case errors.Is(err, sentinel.ErrStale), errors.Is(err, sentinel.ErrInvalidState):
		return domainerr.Wrap(err, domainerr.CodeConflict, "only pending requests can be cancelled")
	default:
		return domainerr.Wrap(err, domainerr.CodeInternal, "cancel deletion request")
	}
}

// GetStatus fetches one request.
func (e *Engine) GetStatus(ctx context.Context, requestID id.RequestID) (*models.DeletionRequest, error) {
	request, err := e.store.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerr.Wrap(err, domainerr.CodeNotFound, "deletion request not found")
		}
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "fetch deletion request")
	}
	return request, nil
}

// ListRequests lists requests matching the filter.
func (e *Engine) ListRequests(ctx context.Context, filter *models.RequestFilter) ([]*models.DeletionRequest, error) {
	requests, err := e.store.List(ctx, filter, e.now())
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "list deletion requests")
	}
	return requests, nil
}

// ExecuteOverdue runs one scheduler pass on demand, outside the ticker.
func (e *Engine) ExecuteOverdue(ctx context.Context) (*scheduler.RunStats, error) {
	stats, err := e.scheduler.RunScheduledJob(ctx)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "run scheduled deletions")
	}
	return stats, nil
}

// Verify re-runs independent verification for a subject right now.
func (e *Engine) Verify(ctx context.Context, subjectID id.SubjectID) (*models.VerificationResult, error) {
	if subjectID == "" {
		return nil, domainerr.New(domainerr.CodeInvalidInput, "subject id is required")
	}
	return e.verifier.Verify(ctx, subjectID), nil
}

// GetCertificate fetches the certificate issued for a request.
func (e *Engine) GetCertificate(ctx context.Context, requestID id.RequestID) (*models.DeletionCertificate, error) {
	cert, err := e.issuer.ByRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerr.Wrap(err, domainerr.CodeNotFound, "no certificate issued for this request")
		}
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "fetch certificate")
	}
	return cert, nil
}

// GenerateComplianceReport builds the report for the trailing number of days.
func (e *Engine) GenerateComplianceReport(ctx context.Context, days int) (*report.ComplianceReport, error) {
	if days <= 0 {
		return nil, domainerr.New(domainerr.CodeInvalidInput, "report window must cover at least one day")
	}
	end := e.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	rep, err := e.reporter.Compliance(ctx, start, end)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "generate compliance report")
	}
	return rep, nil
}

// GetMetrics returns the live operational snapshot.
func (e *Engine) GetMetrics(ctx context.Context) (*report.OperationalMetrics, error) {
	snapshot, err := e.reporter.Operational(ctx)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "collect operational metrics")
	}
	return snapshot, nil
}

// DeadlineCompliance summarizes the current deadline posture.
type DeadlineCompliance struct {
	Overdue     int  `json:"overdue"`
	Approaching int  `json:"approaching"`
	Compliant   bool `json:"compliant"`
}

// CheckDeadlineCompliance reports how many requests are past or nearing
// their deadline, raising alerts through the notifier when attached.
func (e *Engine) CheckDeadlineCompliance(ctx context.Context, lead time.Duration) (*DeadlineCompliance, error) {
	now := e.now()
	overdue, err := e.store.CountOverdue(ctx, now)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "count overdue requests")
	}
	approaching, err := e.store.CountApproachingDeadline(ctx, now, lead)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "count approaching requests")
	}
	if e.notifier != nil {
		e.notifier.DeadlineAlerts(ctx, overdue, approaching)
	}
	return &DeadlineCompliance{
		Overdue:     overdue,
		Approaching: approaching,
		Compliant:   overdue == 0,
	}, nil
}

// AuditTrail lists the audit entries recorded for a request.
func (e *Engine) AuditTrail(ctx context.Context, requestID id.RequestID) ([]*models.AuditLogEntry, error) {
	entries, err := e.ledger.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "list audit entries")
	}
	return entries, nil
}
