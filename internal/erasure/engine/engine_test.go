package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"lethe/internal/erasure/alerts"
	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/certificate"
	"lethe/internal/erasure/engine/mocks"
	"lethe/internal/erasure/locator"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/orchestrator"
	"lethe/internal/erasure/report"
	"lethe/internal/erasure/scheduler"
	"lethe/internal/erasure/store"
	"lethe/internal/erasure/systems"
	"lethe/internal/erasure/verifier"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
)

const retentionWindow = 30 * 24 * time.Hour

type EngineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	subjects *mocks.MockSubjectDirectory
	store    *store.InMemoryStore
	primary  *locator.InMemoryPrimaryStore
	issuer   *certificate.Issuer
	sink     *alerts.CaptureSink
	engine   *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.subjects = mocks.NewMockSubjectDirectory(s.ctrl)

	s.store = store.NewInMemory()
	s.primary = locator.NewInMemoryPrimary()
	audit := auditlog.NewInMemory()
	ledger := auditlog.New(audit)
	s.sink = alerts.NewCaptureSink()
	notifier, err := alerts.New(s.sink)
	s.Require().NoError(err)

	loc, err := locator.New(s.primary, nil)
	s.Require().NoError(err)
	secondaries := []systems.SecondarySystem{
		systems.NewInMemoryCache(),
		systems.NewLogSystem(),
		systems.NewBackupSystem(),
	}
	orch, err := orchestrator.New(loc, secondaries, ledger)
	s.Require().NoError(err)
	ver, err := verifier.New(loc, ledger, secondaries)
	s.Require().NoError(err)
	s.issuer, err = certificate.New(certificate.NewInMemory())
	s.Require().NoError(err)
	sched, err := scheduler.New(s.store, orch, ver, s.issuer, ledger, notifier, scheduler.Config{})
	s.Require().NoError(err)
	reporter, err := report.New(s.store, audit)
	s.Require().NoError(err)

	s.engine, err = New(s.store, s.subjects, sched, ver, s.issuer, ledger, reporter,
		retentionWindow, WithNotifier(notifier))
	s.Require().NoError(err)
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineSuite) expectSubject(subject id.SubjectID, exists bool) {
	s.subjects.EXPECT().SubjectExists(gomock.Any(), subject).Return(exists, nil)
}

// seedOverdue plants an already-overdue pending request directly in the
// store, as if it had been created a retention window ago.
func (s *EngineSuite) seedOverdue(subject id.SubjectID) *models.DeletionRequest {
	now := time.Now()
	request := &models.DeletionRequest{
		ID:              id.NewRequestID(),
		SubjectID:       subject,
		Status:          models.StatusPending,
		InitiatedByUser: true,
		Priority:        models.PriorityNormal,
		RequestedAt:     now.Add(-retentionWindow - 24*time.Hour),
		Deadline:        now.Add(-24 * time.Hour),
		UpdatedAt:       now,
	}
	s.Require().NoError(s.store.Create(context.Background(), request))
	return request
}

func (s *EngineSuite) TestCreateRequest() {
	s.expectSubject("subject-1", true)

	before := time.Now()
	request, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID:       "subject-1",
		InitiatedByUser: true,
		Reason:          "account closure",
	})
	s.Require().NoError(err)

	s.Equal(models.StatusPending, request.Status)
	s.Equal(models.PriorityNormal, request.Priority)
	s.WithinDuration(before.Add(retentionWindow), request.Deadline, 5*time.Second)

	stored, err := s.engine.GetStatus(context.Background(), request.ID)
	s.Require().NoError(err)
	s.Equal(request.ID, stored.ID)
}

func (s *EngineSuite) TestCreateRequestValidation() {
	cases := []struct {
		name   string
		params CreateRequestParams
	}{
		{"missing subject", CreateRequestParams{InitiatedByUser: true}},
		{"admin without actor", CreateRequestParams{SubjectID: "subject-1"}},
		{"unknown priority", CreateRequestParams{SubjectID: "subject-1", InitiatedByUser: true, Priority: "asap"}},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := s.engine.CreateRequest(context.Background(), tc.params)
			s.True(domainerr.HasCode(err, domainerr.CodeInvalidInput))
		})
	}
}

func (s *EngineSuite) TestCreateRequestUnknownSubject() {
	s.expectSubject("subject-ghost", false)

	_, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID:       "subject-ghost",
		InitiatedByUser: true,
	})
	s.True(domainerr.HasCode(err, domainerr.CodeNotFound))
}

func (s *EngineSuite) TestCreateRequestDirectoryFailure() {
	s.subjects.EXPECT().
		SubjectExists(gomock.Any(), id.SubjectID("subject-1")).
		Return(false, errors.New("directory down"))

	_, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID:       "subject-1",
		InitiatedByUser: true,
	})
	s.True(domainerr.HasCode(err, domainerr.CodeInternal))
}

func (s *EngineSuite) TestCreateRequestDuplicateSubjectConflicts() {
	s.expectSubject("subject-1", true)
	s.expectSubject("subject-1", true)

	_, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID: "subject-1", InitiatedByUser: true,
	})
	s.Require().NoError(err)

	_, err = s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID: "subject-1", InitiatedByUser: true,
	})
	s.True(domainerr.HasCode(err, domainerr.CodeConflict))
}

func (s *EngineSuite) TestAdminInitiatedRequest() {
	s.expectSubject("subject-1", true)

	actor := id.NewActorID()
	request, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID:    "subject-1",
		AdminActorID: &actor,
		Reason:       "legal order",
		Priority:     models.PriorityUrgent,
	})
	s.Require().NoError(err)
	s.False(request.InitiatedByUser)
	s.Require().NotNil(request.AdminActorID)
	s.Equal(actor, *request.AdminActorID)
	s.Equal(models.PriorityUrgent, request.Priority)
}

func (s *EngineSuite) TestCancelRequest() {
	s.expectSubject("subject-1", true)
	request, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID: "subject-1", InitiatedByUser: true,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.engine.CancelRequest(context.Background(), request.ID))

	stored, err := s.engine.GetStatus(context.Background(), request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, stored.Status)

	// A settled request cannot be cancelled again.
	err = s.engine.CancelRequest(context.Background(), request.ID)
	s.True(domainerr.HasCode(err, domainerr.CodeConflict))

	err = s.engine.CancelRequest(context.Background(), id.NewRequestID())
	s.True(domainerr.HasCode(err, domainerr.CodeNotFound))
}

func (s *EngineSuite) TestGetStatusUnknownRequest() {
	_, err := s.engine.GetStatus(context.Background(), id.NewRequestID())
	s.True(domainerr.HasCode(err, domainerr.CodeNotFound))
}

// TestOverdueLifecycle walks the public surface end to end: an overdue
// request is executed on demand, verified, certified and auditable.
func (s *EngineSuite) TestOverdueLifecycle() {
	subject := id.SubjectID("subject-1")
	s.primary.Seed("sessions", subject, 3)
	s.primary.Seed("subjects", subject, 1)
	request := s.seedOverdue(subject)

	posture, err := s.engine.CheckDeadlineCompliance(context.Background(), 72*time.Hour)
	s.Require().NoError(err)
	s.Equal(1, posture.Overdue)
	s.False(posture.Compliant)
	s.NotEmpty(s.sink.Alerts())

	stats, err := s.engine.ExecuteOverdue(context.Background())
	s.Require().NoError(err)
	s.Equal(1, stats.Completed)

	stored, err := s.engine.GetStatus(context.Background(), request.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, stored.Status)

	cert, err := s.engine.GetCertificate(context.Background(), request.ID)
	s.Require().NoError(err)
	s.True(cert.ComplianceAttested)
	s.True(cert.VerifySignature())

	verification, err := s.engine.Verify(context.Background(), subject)
	s.Require().NoError(err)
	s.True(verification.IsCompliant)

	trail, err := s.engine.AuditTrail(context.Background(), request.ID)
	s.Require().NoError(err)
	s.NotEmpty(trail)
	for _, entry := range trail {
		s.True(entry.Anonymized)
	}

	posture, err = s.engine.CheckDeadlineCompliance(context.Background(), 72*time.Hour)
	s.Require().NoError(err)
	s.True(posture.Compliant)
}

func (s *EngineSuite) TestGetCertificateBeforeIssuance() {
	_, err := s.engine.GetCertificate(context.Background(), id.NewRequestID())
	s.True(domainerr.HasCode(err, domainerr.CodeNotFound))
}

func (s *EngineSuite) TestVerifyRequiresSubject() {
	_, err := s.engine.Verify(context.Background(), "")
	s.True(domainerr.HasCode(err, domainerr.CodeInvalidInput))
}

func (s *EngineSuite) TestListRequestsFilters() {
	s.expectSubject("subject-1", true)
	s.expectSubject("subject-2", true)

	_, err := s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID: "subject-1", InitiatedByUser: true, Priority: models.PriorityHigh,
	})
	s.Require().NoError(err)
	_, err = s.engine.CreateRequest(context.Background(), CreateRequestParams{
		SubjectID: "subject-2", InitiatedByUser: true,
	})
	s.Require().NoError(err)

	high := models.PriorityHigh
	requests, err := s.engine.ListRequests(context.Background(), &models.RequestFilter{Priority: &high})
	s.Require().NoError(err)
	s.Require().Len(requests, 1)
	s.Equal(id.SubjectID("subject-1"), requests[0].SubjectID)
}

func (s *EngineSuite) TestComplianceReportWindow() {
	_, err := s.engine.GenerateComplianceReport(context.Background(), 0)
	s.True(domainerr.HasCode(err, domainerr.CodeInvalidInput))

	s.seedOverdue("subject-1")
	rep, err := s.engine.GenerateComplianceReport(context.Background(), 60)
	s.Require().NoError(err)
	s.Equal(1, rep.TotalRequests)
	s.Equal(1, rep.Overdue)

	snapshot, err := s.engine.GetMetrics(context.Background())
	s.Require().NoError(err)
	s.Equal(1, snapshot.ByStatus[models.StatusPending])
}
