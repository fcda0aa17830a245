// Package scheduler drives the deletion lifecycle on a fixed cadence. Each
// run recovers stale work, retries failed requests, then claims and executes
// everything past its deadline. Multiple runners may share one store: the
// conditional Transition is the only claim mechanism, so a lost claim is a
// non-event, not an error.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lethe/internal/erasure/alerts"
	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/metrics"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/store"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
)

// Executor runs the deletion cascade for one claimed request.
type Executor interface {
	Execute(ctx context.Context, request *models.DeletionRequest) *models.DeletionResult
}

// Checker independently verifies erasure after execution.
type Checker interface {
	Verify(ctx context.Context, subjectID id.SubjectID) *models.VerificationResult
}

// CertIssuer mints the certificate that closes out a request.
type CertIssuer interface {
	Issue(ctx context.Context, request *models.DeletionRequest, verification *models.VerificationResult) (*models.DeletionCertificate, error)
}

// Config tunes a scheduler instance. Zero values fall back to defaults.
type Config struct {
	Interval         time.Duration
	BatchSize        int
	MaxRetryAttempts int
	StalenessTimeout time.Duration
	DeadlineLeadTime time.Duration
	Concurrency      int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 4 * time.Hour
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = 3
	}
	if c.StalenessTimeout <= 0 {
		c.StalenessTimeout = 2 * time.Hour
	}
	if c.DeadlineLeadTime <= 0 {
		c.DeadlineLeadTime = 72 * time.Hour
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

// RunStats summarizes one scheduler pass.
type RunStats struct {
	Claimed       int
	Completed     int
	Failed        int
	Recovered     int
	Retried       int
	ConflictSkips int
	Overdue       int
	Approaching   int
	Duration      time.Duration
	NextRun       time.Time
}

// Scheduler owns the periodic execution loop.
type Scheduler struct {
	store    store.Store
	executor Executor
	checker  Checker
	issuer   CertIssuer
	ledger   *auditlog.Ledger
	notifier *alerts.Notifier
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Option configures the Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires a Scheduler. The store, executor, checker, issuer and ledger are
// mandatory; the notifier is optional (nil disables alerting).
func New(st store.Store, executor Executor, checker Checker, issuer CertIssuer, ledger *auditlog.Ledger, notifier *alerts.Notifier, cfg Config, opts ...Option) (*Scheduler, error) {
	if st == nil || executor == nil || checker == nil || issuer == nil || ledger == nil {
		return nil, fmt.Errorf("store, executor, checker, issuer and ledger are required")
	}
	s := &Scheduler{
		store:    st,
		executor: executor,
		checker:  checker,
		issuer:   issuer,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start launches the periodic loop. It runs one pass immediately, then one
// per interval until Stop is called or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.RunScheduledJob(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduler pass failed", "error", err)
	}
}

// RunScheduledJob executes one full scheduler pass and reports what it did.
// It is safe to call concurrently from multiple runners against one store.
func (s *Scheduler) RunScheduledJob(ctx context.Context) (*RunStats, error) {
	started := s.now()
	stats := &RunStats{}

	if err := s.reportDeadlinePosture(ctx, stats); err != nil {
		return nil, err
	}

	recovered, err := s.recoverStale(ctx)
	if err != nil {
		return nil, err
	}
	stats.Recovered = recovered

	retried, err := s.requeueFailed(ctx)
	if err != nil {
		return nil, err
	}
	stats.Retried = retried

	if err := s.executeOverdue(ctx, stats); err != nil {
		return nil, err
	}

	stats.Duration = s.now().Sub(started)
	stats.NextRun = started.Add(s.cfg.Interval)
	if s.metrics != nil {
		s.metrics.SchedulerRunDuration.Observe(stats.Duration.Seconds())
	}
	s.logger.InfoContext(ctx, "scheduler pass finished",
		"claimed", stats.Claimed,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"recovered", stats.Recovered,
		"retried", stats.Retried,
		"conflict_skips", stats.ConflictSkips,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (s *Scheduler) reportDeadlinePosture(ctx context.Context, stats *RunStats) error {
	now := s.now()
	overdue, err := s.store.CountOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("count overdue requests: %w", err)
	}
	approaching, err := s.store.CountApproachingDeadline(ctx, now, s.cfg.DeadlineLeadTime)
	if err != nil {
		return fmt.Errorf("count approaching requests: %w", err)
	}
	stats.Overdue = overdue
	stats.Approaching = approaching

	if s.metrics != nil {
		s.metrics.OverdueRequests.Set(float64(overdue))
	}
	if s.notifier != nil {
		s.notifier.DeadlineAlerts(ctx, overdue, approaching)
	}
	return nil
}

// recoverStale fails in-progress requests whose runner evidently died, so a
// later pass can retry them. The status guard means a runner that is merely
// slow, and finishes in between, wins cleanly.
func (s *Scheduler) recoverStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.StalenessTimeout)
	stale, err := s.store.FindStaleInProgress(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find stale requests: %w", err)
	}

	recovered := 0
	for _, request := range stale {
		lastError := "execution abandoned: runner exceeded staleness timeout"
		err := s.store.Transition(ctx, request.ID, models.StatusInProgress, models.StatusFailed, store.TransitionUpdate{
			LastError: &lastError,
		})
		switch {
		case err == nil:
			recovered++
			s.logger.WarnContext(ctx, "recovered stale request", "request_id", request.ID)
		case isClaimLoss(err):
			// Another runner finished or recovered it first.
		default:
			return recovered, fmt.Errorf("recover stale request %s: %w", request.ID, err)
		}
	}
	return recovered, nil
}

// requeueFailed moves retryable failed requests back through the pipeline by
// executing them directly; the Failed -> InProgress edge is the claim.
func (s *Scheduler) requeueFailed(ctx context.Context) (int, error) {
	retryable, err := s.store.FindRetryable(ctx, s.cfg.MaxRetryAttempts, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find retryable requests: %w", err)
	}

	retried := 0
	for _, request := range retryable {
		claimed, err := s.claim(ctx, request, models.StatusFailed)
		if err != nil {
			return retried, err
		}
		if !claimed {
			continue
		}
		retried++
		s.process(ctx, request)
	}
	return retried, nil
}

// executeOverdue claims every pending request past its deadline and runs the
// pipeline over a bounded worker group.
func (s *Scheduler) executeOverdue(ctx context.Context, stats *RunStats) error {
	overdue, err := s.store.FindOverdue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("find overdue requests: %w", err)
	}

	var (
		mu        sync.Mutex
		claimed   int
		completed int
		failed    int
		conflicts int
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Concurrency)
	for _, request := range overdue {
		request := request
		group.Go(func() error {
			ok, err := s.claim(groupCtx, request, models.StatusPending)
			if err != nil {
				return err
			}
			mu.Lock()
			if !ok {
				conflicts++
				mu.Unlock()
				return nil
			}
			claimed++
			mu.Unlock()

			if s.process(groupCtx, request) {
				mu.Lock()
				completed++
				mu.Unlock()
			} else {
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	stats.Claimed += claimed
	stats.Completed += completed
	stats.Failed += failed
	stats.ConflictSkips += conflicts
	return nil
}

// claim performs the compare-and-swap transition into in_progress. A stale
// read means another runner won; that is reported as not-claimed, not as an
// error.
func (s *Scheduler) claim(ctx context.Context, request *models.DeletionRequest, from models.Status) (bool, error) {
	scheduledAt := s.now()
	err := s.store.Transition(ctx, request.ID, from, models.StatusInProgress, store.TransitionUpdate{
		ScheduledAt:       &scheduledAt,
		IncrementAttempts: true,
	})
	switch {
	case err == nil:
		s.ledger.Record(ctx, &models.AuditLogEntry{
			RequestID:  request.ID,
			SubjectRef: string(request.SubjectID),
			Operation:  models.AuditOpRequestClaimed,
			SystemType: models.SystemPrimaryStore,
			Success:    true,
		})
		return true, nil
	case isClaimLoss(err):
		if s.metrics != nil {
			s.metrics.ClaimConflicts.Inc()
		}
		return false, nil
	default:
		return false, fmt.Errorf("claim request %s: %w", request.ID, err)
	}
}

// process runs the cascade, verification and certification for one claimed
// request and records the terminal transition. It returns true when the
// request completed. Pipeline errors mark the request failed instead of
// propagating: one bad request must not starve the batch.
func (s *Scheduler) process(ctx context.Context, request *models.DeletionRequest) bool {
	result := s.executor.Execute(ctx, request)
	if !result.Succeeded() {
		s.markFailed(ctx, request, result.FirstError())
		return false
	}

	// Rewrite the audit trail before verifying: raw subject references in
	// the ledger count as residue, so anonymization is part of erasure.
	if _, err := s.ledger.AnonymizeRequestEntries(ctx, request.ID, request.SubjectID); err != nil {
		s.markFailed(ctx, request, fmt.Errorf("anonymize audit trail: %w", err))
		return false
	}

	// Verification is the gate on completion: residual subject data anywhere
	// means the request failed, however clean the cascade looked. No
	// certificate is minted for a non-passing result.
	verification := s.checker.Verify(ctx, request.SubjectID)
	if !verification.IsCompliant {
		if s.notifier != nil {
			s.notifier.VerificationFailed(ctx, request.ID.String(), verification.OverallScore)
		}
		s.markFailed(ctx, request, residualDataError(verification))
		return false
	}

	cert, err := s.issuer.Issue(ctx, request, verification)
	if err != nil {
		s.markFailed(ctx, request, fmt.Errorf("issue certificate: %w", err))
		return false
	}

	completedAt := s.now()
	err = s.store.Transition(ctx, request.ID, models.StatusInProgress, models.StatusCompleted, store.TransitionUpdate{
		CompletedAt:   &completedAt,
		CertificateID: &cert.ID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "complete transition failed", "request_id", request.ID, "error", err)
		return false
	}

	if s.metrics != nil {
		s.metrics.RequestsCompleted.Inc()
	}
	s.ledger.Record(ctx, &models.AuditLogEntry{
		RequestID:  request.ID,
		SubjectRef: models.AnonymizeSubjectRef(request.SubjectID),
		Anonymized: true,
		Operation:  models.AuditOpRequestCompleted,
		SystemType: models.SystemPrimaryStore,
		Success:    true,
	})
	s.logger.InfoContext(ctx, "deletion request completed",
		"request_id", request.ID,
		"certificate_id", cert.ID,
	)
	return true
}

func (s *Scheduler) markFailed(ctx context.Context, request *models.DeletionRequest, cause error) {
	message := "deletion cascade failed"
	if cause != nil {
		message = cause.Error()
	}
	err := s.store.Transition(ctx, request.ID, models.StatusInProgress, models.StatusFailed, store.TransitionUpdate{
		LastError: &message,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "fail transition failed", "request_id", request.ID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RequestsFailed.Inc()
	}
	// Failed is a terminal transition for audit purposes even when the
	// request remains retry-eligible: no entry may keep the raw subject id.
	if _, err := s.ledger.AnonymizeRequestEntries(ctx, request.ID, request.SubjectID); err != nil {
		s.logger.ErrorContext(ctx, "anonymize audit trail failed", "request_id", request.ID, "error", err)
	}
	s.ledger.Record(ctx, &models.AuditLogEntry{
		RequestID:    request.ID,
		SubjectRef:   models.AnonymizeSubjectRef(request.SubjectID),
		Anonymized:   true,
		Operation:    models.AuditOpRequestFailed,
		SystemType:   models.SystemPrimaryStore,
		Success:      false,
		ErrorMessage: message,
	})
	s.logger.WarnContext(ctx, "deletion request failed", "request_id", request.ID, "error", message)
}

// residualDataError names every system whose check still found subject data,
// so the stored LastError tells an operator exactly where the residue lives.
func residualDataError(verification *models.VerificationResult) error {
	var parts []string
	for _, check := range verification.FailingSystems() {
		parts = append(parts, fmt.Sprintf("%s (%d residual records)", check.SystemName, check.ResidualCount))
	}
	return fmt.Errorf("verification found residual subject data: %s", strings.Join(parts, ", "))
}

func isClaimLoss(err error) bool {
	return errors.Is(err, sentinel.ErrStale) ||
		errors.Is(err, sentinel.ErrNotFound) ||
		errors.Is(err, sentinel.ErrInvalidState)
}
