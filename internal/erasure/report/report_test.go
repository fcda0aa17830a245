package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/store"
	id "lethe/pkg/domain"
)

var reportNow = time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

type seedRequest struct {
	status          models.Status
	initiatedByUser bool
	requestedAt     time.Time
	deadline        time.Time
	completedAt     *time.Time
}

func seedStore(t *testing.T, seeds []seedRequest) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemory()
	for i, seed := range seeds {
		request := &models.DeletionRequest{
			ID:              id.NewRequestID(),
			SubjectID:       id.SubjectID(fmt.Sprintf("subject-%d", i)),
			Status:          seed.status,
			InitiatedByUser: seed.initiatedByUser,
			Priority:        models.PriorityNormal,
			RequestedAt:     seed.requestedAt,
			Deadline:        seed.deadline,
			CompletedAt:     seed.completedAt,
			UpdatedAt:       seed.requestedAt,
		}
		require.NoError(t, st.Create(context.Background(), request))
	}
	return st
}

func newReporter(t *testing.T, st *store.InMemoryStore, audit *auditlog.InMemoryStore) *Reporter {
	t.Helper()
	if audit == nil {
		audit = auditlog.NewInMemory()
	}
	r, err := New(st, audit, WithClock(func() time.Time { return reportNow }))
	require.NoError(t, err)
	return r
}

func TestComplianceReportAggregates(t *testing.T) {
	inWindow := reportNow.Add(-10 * 24 * time.Hour)
	futureDeadline := reportNow.Add(20 * 24 * time.Hour)
	pastDeadline := reportNow.Add(-1 * 24 * time.Hour)
	doneAt := inWindow.Add(5 * 24 * time.Hour)

	st := seedStore(t, []seedRequest{
		{status: models.StatusCompleted, initiatedByUser: true, requestedAt: inWindow, deadline: futureDeadline, completedAt: &doneAt},
		{status: models.StatusPending, initiatedByUser: true, requestedAt: inWindow, deadline: futureDeadline},
		{status: models.StatusPending, initiatedByUser: false, requestedAt: inWindow, deadline: pastDeadline},
		{status: models.StatusCancelled, initiatedByUser: true, requestedAt: inWindow, deadline: futureDeadline},
		// Outside the window: must not appear anywhere in the report.
		{status: models.StatusPending, initiatedByUser: true, requestedAt: reportNow.Add(-90 * 24 * time.Hour), deadline: pastDeadline},
	})
	r := newReporter(t, st, nil)

	start := reportNow.Add(-30 * 24 * time.Hour)
	report, err := r.Compliance(context.Background(), start, reportNow)
	require.NoError(t, err)

	assert.Equal(t, 4, report.TotalRequests)
	assert.Equal(t, 3, report.UserInitiated)
	assert.Equal(t, 1, report.AdminInitiated)
	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, map[models.Status]int{
		models.StatusCompleted: 1,
		models.StatusPending:   2,
		models.StatusCancelled: 1,
	}, report.ByStatus)
	assert.Equal(t, 5*24*time.Hour, report.AvgCompletionTime)
	// One of four overdue: 100 - (1/4)*50.
	assert.InDelta(t, 87.5, report.ComplianceScore, 0.001)
}

func TestComplianceReportEmptyWindow(t *testing.T) {
	r := newReporter(t, store.NewInMemory(), nil)

	report, err := r.Compliance(context.Background(), reportNow.Add(-time.Hour), reportNow)
	require.NoError(t, err)

	assert.Zero(t, report.TotalRequests)
	assert.Zero(t, report.AvgCompletionTime)
	assert.InDelta(t, 100.0, report.ComplianceScore, 0.001)
}

// A request that completed after its deadline is late but not overdue: the
// obligation was eventually met.
func TestComplianceReportLateCompletionIsNotOverdue(t *testing.T) {
	requestedAt := reportNow.Add(-40 * 24 * time.Hour)
	deadline := reportNow.Add(-10 * 24 * time.Hour)
	doneAt := reportNow.Add(-5 * 24 * time.Hour)

	st := seedStore(t, []seedRequest{
		{status: models.StatusCompleted, initiatedByUser: true, requestedAt: requestedAt, deadline: deadline, completedAt: &doneAt},
	})
	r := newReporter(t, st, nil)

	report, err := r.Compliance(context.Background(), reportNow.Add(-60*24*time.Hour), reportNow)
	require.NoError(t, err)

	assert.Zero(t, report.Overdue)
	assert.InDelta(t, 100.0, report.ComplianceScore, 0.001)
}

func TestComplianceScoreFloorsAtZero(t *testing.T) {
	assert.InDelta(t, 100.0, complianceScore(0, 0), 0.001)
	assert.InDelta(t, 100.0, complianceScore(0, 10), 0.001)
	assert.InDelta(t, 75.0, complianceScore(5, 10), 0.001)
	assert.InDelta(t, 50.0, complianceScore(10, 10), 0.001)
}

func TestComplianceRejectsInvertedWindow(t *testing.T) {
	r := newReporter(t, store.NewInMemory(), nil)

	_, err := r.Compliance(context.Background(), reportNow, reportNow.Add(-time.Hour))
	assert.Error(t, err)
	_, err = r.Compliance(context.Background(), reportNow, reportNow)
	assert.Error(t, err)
}

func TestOperationalSnapshot(t *testing.T) {
	pastDeadline := reportNow.Add(-24 * time.Hour)
	st := seedStore(t, []seedRequest{
		{status: models.StatusPending, initiatedByUser: true, requestedAt: reportNow.Add(-31 * 24 * time.Hour), deadline: pastDeadline},
		{status: models.StatusFailed, initiatedByUser: true, requestedAt: reportNow.Add(-31 * 24 * time.Hour), deadline: pastDeadline},
	})

	audit := auditlog.NewInMemory()
	ledger := auditlog.New(audit)
	ledger.RecordStep(context.Background(), id.NewRequestID(), "subject-x",
		models.AuditOpHardDelete, models.SystemPrimaryStore, "sessions", models.Success(1))

	r := newReporter(t, st, audit)

	snapshot, err := r.Operational(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, snapshot.ByStatus[models.StatusPending])
	assert.Equal(t, 1, snapshot.ByStatus[models.StatusFailed])
	assert.Equal(t, 1, snapshot.Overdue)
	assert.Equal(t, 1, snapshot.TotalAuditEntries)
}
