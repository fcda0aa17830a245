package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "lethe/pkg/domain"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusFailed, true},
		{StatusInProgress, StatusCancelled, false},
		{StatusFailed, StatusInProgress, true},
		{StatusFailed, StatusCancelled, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusInProgress, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusInProgress.IsActive())
	assert.False(t, StatusFailed.IsActive())

	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	// Failed is not terminal: it remains retry-eligible.
	assert.False(t, StatusFailed.IsTerminal())

	assert.False(t, Status("unknown").IsValid())
	assert.False(t, Priority("asap").IsValid())
}

func TestRequestIsOverdue(t *testing.T) {
	now := time.Now()
	request := &DeletionRequest{Deadline: now.Add(time.Minute)}
	assert.False(t, request.IsOverdue(now))
	assert.True(t, request.IsOverdue(now.Add(time.Minute)))
	assert.True(t, request.IsOverdue(now.Add(time.Hour)))
}

func TestStepOutcome(t *testing.T) {
	assert.True(t, Success(3).Succeeded())
	assert.True(t, Skipped("nothing to do").Succeeded())
	assert.False(t, Failed(errors.New("boom")).Succeeded())
	assert.Equal(t, "boom", Failed(errors.New("boom")).ErrorMessage())
	assert.Empty(t, Success(0).ErrorMessage())
}

func TestDeletionResultAggregation(t *testing.T) {
	result := &DeletionResult{
		Outcomes: map[SystemType]StepOutcome{
			SystemPrimaryStore: Success(5),
			SystemCache:        Success(2),
			SystemLogs:         Failed(errors.New("log store down")),
			SystemBackups:      Skipped("no snapshots"),
		},
	}
	assert.False(t, result.Succeeded())
	assert.Equal(t,
		[]SystemType{SystemPrimaryStore, SystemCache, SystemBackups},
		result.SucceededSystems(),
	)
	err := result.FirstError()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logs")

	clean := &DeletionResult{Outcomes: map[SystemType]StepOutcome{SystemPrimaryStore: Success(1)}}
	assert.True(t, clean.Succeeded())
	assert.NoError(t, clean.FirstError())
}

func TestAuditEntryIntegrityHash(t *testing.T) {
	entry := &AuditLogEntry{
		RequestID:       id.NewRequestID(),
		SubjectRef:      "subject-1",
		Operation:       AuditOpHardDelete,
		SystemType:      SystemPrimaryStore,
		TableOrResource: "sessions",
		RecordsAffected: 4,
		Success:         true,
		Timestamp:       time.Now(),
	}
	entry.IntegrityHash = entry.ComputeIntegrityHash()
	assert.True(t, entry.Verify())

	// Any recorded field change invalidates the hash.
	entry.RecordsAffected = 5
	assert.False(t, entry.Verify())
}

func TestAnonymizeSubjectRef(t *testing.T) {
	ref := AnonymizeSubjectRef("subject-1")
	assert.Contains(t, ref, "anon:")
	assert.NotContains(t, ref, "subject-1")
	// Stable: the same subject always maps to the same pseudonym.
	assert.Equal(t, ref, AnonymizeSubjectRef("subject-1"))
	assert.NotEqual(t, ref, AnonymizeSubjectRef("subject-2"))
}

func TestCertificateSignature(t *testing.T) {
	verifiedAt := time.Now()
	cert := &DeletionCertificate{
		ID:        id.NewCertificateID(),
		SubjectID: "subject-1",
		VerificationSnapshot: VerificationResult{
			OverallScore: 100,
			VerifiedAt:   verifiedAt,
		},
	}
	cert.Signature = ComputeSignature(cert.ID, cert.SubjectID, verifiedAt, 100)
	assert.True(t, cert.VerifySignature())

	// Re-pointing the attestation at a different verification breaks it.
	cert.VerificationSnapshot.OverallScore = 80
	assert.False(t, cert.VerifySignature())
}

func TestComplianceThresholds(t *testing.T) {
	assert.Equal(t, float64(100), SystemPrimaryStore.ComplianceThreshold())
	assert.Equal(t, float64(100), SystemPayment.ComplianceThreshold())
	assert.Equal(t, float64(95), SystemCache.ComplianceThreshold())
	assert.Equal(t, float64(95), SystemBackups.ComplianceThreshold())
	assert.Equal(t, float64(90), SystemLogs.ComplianceThreshold())
}
