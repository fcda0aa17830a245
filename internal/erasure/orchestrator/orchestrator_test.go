package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/locator"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/systems"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
)

// flakySystem fails a configurable number of Erase calls before succeeding.
type flakySystem struct {
	systemType models.SystemType
	failures   int
	calls      int
}

func (f *flakySystem) Type() models.SystemType { return f.systemType }

func (f *flakySystem) Erase(context.Context, id.SubjectID) (int, error) {
	f.calls++
	if f.calls <= f.failures {
		return 0, errors.New("system unavailable")
	}
	return 1, nil
}

func (f *flakySystem) ExistsForSubject(context.Context, id.SubjectID) (bool, error) {
	return false, nil
}

func (f *flakySystem) ResidualCount(context.Context, id.SubjectID) (int, error) {
	return 0, nil
}

// slowSystem blocks until its context expires.
type slowSystem struct {
	systemType models.SystemType
}

func (s *slowSystem) Type() models.SystemType { return s.systemType }

func (s *slowSystem) Erase(ctx context.Context, _ id.SubjectID) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (s *slowSystem) ExistsForSubject(context.Context, id.SubjectID) (bool, error) {
	return false, nil
}

func (s *slowSystem) ResidualCount(context.Context, id.SubjectID) (int, error) {
	return 0, nil
}

// failingPrimary rejects deletes on one table.
type failingPrimary struct {
	*locator.InMemoryPrimaryStore
	failTable string
}

func (f *failingPrimary) DeleteBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error) {
	if table == f.failTable {
		return 0, errors.New("constraint violation")
	}
	return f.InMemoryPrimaryStore.DeleteBySubject(ctx, table, subjectID)
}

type OrchestratorSuite struct {
	suite.Suite
	primary *locator.InMemoryPrimaryStore
	cache   *systems.InMemoryCache
	logs    *systems.LogSystem
	backups *systems.BackupSystem
	payment *systems.InMemoryPaymentAPI
	ledger  *auditlog.Ledger
	audit   *auditlog.InMemoryStore
	request *models.DeletionRequest
	subject id.SubjectID
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func (s *OrchestratorSuite) SetupTest() {
	s.subject = "subject-1"
	s.primary = locator.NewInMemoryPrimary()
	s.primary.Seed("sessions", s.subject, 2)
	s.primary.Seed("invoices", s.subject, 1)
	s.primary.Seed("subjects", s.subject, 1)

	s.cache = systems.NewInMemoryCache()
	s.cache.Set("subject:subject-1:profile", "cached")
	s.logs = systems.NewLogSystem()
	s.logs.Ingest("login ok subject-1", "logout subject-1", "login ok subject-2")
	s.backups = systems.NewBackupSystem()
	s.backups.Seed(s.subject, 3)
	s.payment = systems.NewInMemoryPaymentAPI()
	s.payment.AddCustomer("cus_123")

	s.audit = auditlog.NewInMemory()
	s.ledger = auditlog.New(s.audit)

	now := time.Now()
	s.request = &models.DeletionRequest{
		ID:          id.NewRequestID(),
		SubjectID:   s.subject,
		Status:      models.StatusInProgress,
		RequestedAt: now.Add(-31 * 24 * time.Hour),
		Deadline:    now.Add(-24 * time.Hour),
		UpdatedAt:   now,
	}
}

func (s *OrchestratorSuite) secondaries() []systems.SecondarySystem {
	directory := systems.NewStaticCustomerDirectory()
	directory.Link(s.subject, "cus_123")
	return []systems.SecondarySystem{
		s.cache,
		s.logs,
		s.backups,
		systems.NewPaymentSystem(s.payment, directory),
	}
}

func (s *OrchestratorSuite) newOrchestrator(primary locator.PrimaryStore, secondaries []systems.SecondarySystem) *Orchestrator {
	loc, err := locator.New(primary, nil)
	s.Require().NoError(err)
	orch, err := New(loc, secondaries, s.ledger)
	s.Require().NoError(err)
	return orch
}

// TestFullCascade: every system is erased, preserve-for-audit tables are
// anonymized instead of deleted, and each step leaves an audit entry.
func (s *OrchestratorSuite) TestFullCascade() {
	orch := s.newOrchestrator(s.primary, s.secondaries())

	result := orch.Execute(context.Background(), s.request)

	s.True(result.Succeeded())
	s.Len(result.Outcomes, 5)

	// Invoices survive erasure, scrubbed in place.
	s.Equal(1, s.primary.AnonymizedCount("invoices", s.subject))
	count, err := s.primary.CountBySubject(context.Background(), "sessions", s.subject)
	s.Require().NoError(err)
	s.Zero(count)

	cacheLeft, err := s.cache.ResidualCount(context.Background(), s.subject)
	s.Require().NoError(err)
	s.Zero(cacheLeft)
	logsLeft, err := s.logs.ResidualCount(context.Background(), s.subject)
	s.Require().NoError(err)
	s.Zero(logsLeft)
	s.Equal(1, s.payment.DeleteAttempts("cus_123"))

	// One audit entry per primary table plus one per secondary system.
	entries, err := s.ledger.ListByRequest(context.Background(), s.request.ID)
	s.Require().NoError(err)
	s.Len(entries, len(locator.DefaultPlan())+4)
	for _, entry := range entries {
		s.True(entry.Success)
		s.True(entry.Verify())
	}
}

// TestIdempotentRerun: a second full run over an already-clean subject
// succeeds with zero records affected everywhere.
func (s *OrchestratorSuite) TestIdempotentRerun() {
	orch := s.newOrchestrator(s.primary, s.secondaries())

	first := orch.Execute(context.Background(), s.request)
	s.Require().True(first.Succeeded())

	second := orch.Execute(context.Background(), s.request)
	s.True(second.Succeeded())
	for system, outcome := range second.Outcomes {
		s.Zero(outcome.RecordsAffected, "system %s should have nothing left", system)
	}
	// The already-deleted payment identity is not an error...
	s.Equal(models.StepSuccess, second.Outcomes[models.SystemPayment].Status)
	// ...and the retry really did call the processor again.
	s.Equal(2, s.payment.DeleteAttempts("cus_123"))
}

// TestPrimaryFailureAbortsCascade: a primary-store failure partway through
// the plan is irrecoverable; the tables erased before it keep their success
// entries, and secondaries are left unattempted and unreported so a retry
// re-runs them.
func (s *OrchestratorSuite) TestPrimaryFailureAbortsCascade() {
	primary := &failingPrimary{InMemoryPrimaryStore: s.primary, failTable: "activity_events"}
	orch := s.newOrchestrator(primary, s.secondaries())

	result := orch.Execute(context.Background(), s.request)

	s.False(result.Succeeded())
	outcome := result.Outcomes[models.SystemPrimaryStore]
	s.Equal(models.StepFailed, outcome.Status)
	s.True(domainerr.HasCode(outcome.Err, domainerr.CodeIrrecoverable))
	s.Contains(outcome.Err.Error(), "constraint violation")
	s.Len(result.Outcomes, 1)

	// The table erased before the failure keeps its success entry; the
	// failing table is logged as a failure; nothing after it is attempted.
	entries, err := s.ledger.ListByRequest(context.Background(), s.request.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("sessions", entries[0].TableOrResource)
	s.True(entries[0].Success)
	s.Equal(2, entries[0].RecordsAffected)
	s.Equal("activity_events", entries[1].TableOrResource)
	s.False(entries[1].Success)
	s.Contains(entries[1].ErrorMessage, "constraint violation")

	// No secondary system was touched.
	s.Equal(0, s.payment.DeleteAttempts("cus_123"))
	cacheLeft, err := s.cache.ResidualCount(context.Background(), s.subject)
	s.Require().NoError(err)
	s.Equal(1, cacheLeft)
}

// TestSecondaryFailureContinues: one secondary failing is transient; the
// remaining systems still run and the failure is categorized for retry.
func (s *OrchestratorSuite) TestSecondaryFailureContinues() {
	failing := &flakySystem{systemType: models.SystemCache, failures: 1}
	secondaries := []systems.SecondarySystem{failing, s.logs, s.backups}
	orch := s.newOrchestrator(s.primary, secondaries)

	result := orch.Execute(context.Background(), s.request)

	s.False(result.Succeeded())
	s.Equal(models.StepFailed, result.Outcomes[models.SystemCache].Status)
	s.True(domainerr.HasCode(result.Outcomes[models.SystemCache].Err, domainerr.CodeTransientSystem))
	// The message names the root cause, so it survives into lastError.
	s.Contains(result.Outcomes[models.SystemCache].Err.Error(), "system unavailable")

	// Later systems still ran.
	s.Equal(models.StepSuccess, result.Outcomes[models.SystemLogs].Status)
	s.Equal(models.StepSuccess, result.Outcomes[models.SystemBackups].Status)
	logsLeft, err := s.logs.ResidualCount(context.Background(), s.subject)
	s.Require().NoError(err)
	s.Zero(logsLeft)
}

// TestStepTimeout: a hanging system call is bounded by the step timeout and
// categorized as a timeout failure; the batch never hangs.
func (s *OrchestratorSuite) TestStepTimeout() {
	hanging := &slowSystem{systemType: models.SystemLogs}
	loc, err := locator.New(s.primary, nil)
	s.Require().NoError(err)
	orch, err := New(loc, []systems.SecondarySystem{hanging}, s.ledger, WithStepTimeout(10*time.Millisecond))
	s.Require().NoError(err)

	result := orch.Execute(context.Background(), s.request)

	outcome := result.Outcomes[models.SystemLogs]
	s.Equal(models.StepFailed, outcome.Status)
	s.True(domainerr.HasCode(outcome.Err, domainerr.CodeTimeout))
}
