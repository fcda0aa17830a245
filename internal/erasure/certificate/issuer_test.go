package certificate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
)

func compliantVerification(subject id.SubjectID) *models.VerificationResult {
	return &models.VerificationResult{
		SubjectID: subject,
		PerSystemResults: map[models.SystemType]models.SystemVerification{
			models.SystemPrimaryStore: {SystemName: models.SystemPrimaryStore, Passed: true, Details: "no raw subject references remain"},
			models.SystemCache:        {SystemName: models.SystemCache, Passed: true, Details: "no residual data"},
		},
		OverallScore:  100,
		IsFullyErased: true,
		IsCompliant:   true,
		VerifiedAt:    time.Now(),
	}
}

func failedVerification(subject id.SubjectID) *models.VerificationResult {
	return &models.VerificationResult{
		SubjectID: subject,
		PerSystemResults: map[models.SystemType]models.SystemVerification{
			models.SystemPrimaryStore: {SystemName: models.SystemPrimaryStore, Passed: true, Details: "no raw subject references remain"},
			models.SystemPayment:      {SystemName: models.SystemPayment, Passed: false, ResidualCount: 1, Details: "1 residual records"},
		},
		OverallScore:  50,
		IsFullyErased: false,
		IsCompliant:   false,
		VerifiedAt:    time.Now(),
	}
}

func pendingRequest(subject id.SubjectID) *models.DeletionRequest {
	now := time.Now()
	return &models.DeletionRequest{
		ID:          id.NewRequestID(),
		SubjectID:   subject,
		Status:      models.StatusInProgress,
		RequestedAt: now.Add(-24 * time.Hour),
		Deadline:    now.Add(29 * 24 * time.Hour),
		UpdatedAt:   now,
	}
}

func TestIssueCompliantCertificate(t *testing.T) {
	issuedAt := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	issuer, err := New(NewInMemory(), WithClock(func() time.Time { return issuedAt }))
	require.NoError(t, err)

	subject := id.SubjectID("subject-1")
	request := pendingRequest(subject)

	cert, err := issuer.Issue(context.Background(), request, compliantVerification(subject))
	require.NoError(t, err)

	assert.Equal(t, request.ID, cert.RequestID)
	assert.Equal(t, subject, cert.SubjectID)
	assert.True(t, cert.IsCompleteDeletion)
	assert.True(t, cert.ComplianceAttested)
	assert.Equal(t, issuedAt, cert.IssuedAt)
	assert.Equal(t, "lethe-deletion-engine", cert.Issuer)
	assert.True(t, cert.VerifySignature())

	assert.Contains(t, cert.BodyText, "CERTIFICATE OF DELETION")
	assert.Contains(t, cert.BodyText, "erased or irreversibly anonymized")
	assert.NotContains(t, cert.BodyText, "action required")

	// The snapshot is embedded, not referenced.
	assert.Len(t, cert.VerificationSnapshot.PerSystemResults, 2)
}

func TestIssueNonCompliantCertificateNamesFailures(t *testing.T) {
	issuer, err := New(NewInMemory())
	require.NoError(t, err)

	subject := id.SubjectID("subject-1")
	cert, err := issuer.Issue(context.Background(), pendingRequest(subject), failedVerification(subject))
	require.NoError(t, err)

	assert.False(t, cert.ComplianceAttested)
	assert.False(t, cert.IsCompleteDeletion)
	assert.True(t, cert.VerifySignature())
	assert.Contains(t, cert.BodyText, "action required")
	assert.Contains(t, cert.BodyText, string(models.SystemPayment))
	assert.Contains(t, cert.BodyText, "1 residual records")
}

func TestIssueTwiceForSameRequestConflicts(t *testing.T) {
	issuer, err := New(NewInMemory())
	require.NoError(t, err)

	subject := id.SubjectID("subject-1")
	request := pendingRequest(subject)
	verification := compliantVerification(subject)

	first, err := issuer.Issue(context.Background(), request, verification)
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), request, verification)
	require.Error(t, err)
	assert.True(t, domainerr.HasCode(err, domainerr.CodeConflict))

	// The original attestation is untouched and retrievable both ways.
	byRequest, err := issuer.ByRequest(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, byRequest.ID)
	byID, err := issuer.ByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Signature, byID.Signature)
}

func TestIssueValidatesInputs(t *testing.T) {
	issuer, err := New(NewInMemory())
	require.NoError(t, err)

	_, err = issuer.Issue(context.Background(), nil, compliantVerification("subject-1"))
	assert.True(t, domainerr.HasCode(err, domainerr.CodeInvalidInput))

	_, err = issuer.Issue(context.Background(), pendingRequest("subject-1"), nil)
	assert.True(t, domainerr.HasCode(err, domainerr.CodeInvalidInput))
}

func TestLookupUnknownCertificate(t *testing.T) {
	issuer, err := New(NewInMemory())
	require.NoError(t, err)

	_, err = issuer.ByRequest(context.Background(), id.NewRequestID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSignatureDetectsTampering(t *testing.T) {
	issuer, err := New(NewInMemory())
	require.NoError(t, err)

	subject := id.SubjectID("subject-1")
	cert, err := issuer.Issue(context.Background(), pendingRequest(subject), compliantVerification(subject))
	require.NoError(t, err)
	require.True(t, cert.VerifySignature())

	cert.VerificationSnapshot.OverallScore = 42
	assert.False(t, cert.VerifySignature())
}
