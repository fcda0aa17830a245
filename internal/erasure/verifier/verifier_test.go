package verifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/locator"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/systems"
	id "lethe/pkg/domain"
)

// brokenSystem's checks cannot be executed at all.
type brokenSystem struct {
	systemType models.SystemType
}

func (b *brokenSystem) Type() models.SystemType { return b.systemType }

func (b *brokenSystem) Erase(context.Context, id.SubjectID) (int, error) {
	return 0, errors.New("unreachable")
}

func (b *brokenSystem) ExistsForSubject(context.Context, id.SubjectID) (bool, error) {
	return false, errors.New("unreachable")
}

func (b *brokenSystem) ResidualCount(context.Context, id.SubjectID) (int, error) {
	return 0, errors.New("unreachable")
}

func newVerifier(t *testing.T, primary *locator.InMemoryPrimaryStore, audit *auditlog.InMemoryStore, secondaries []systems.SecondarySystem) *Verifier {
	t.Helper()
	loc, err := locator.New(primary, nil)
	require.NoError(t, err)
	v, err := New(loc, auditlog.New(audit), secondaries)
	require.NoError(t, err)
	return v
}

func TestVerifyCleanSubjectIsCompliant(t *testing.T) {
	subject := id.SubjectID("subject-clean")
	secondaries := []systems.SecondarySystem{
		systems.NewInMemoryCache(),
		systems.NewLogSystem(),
		systems.NewBackupSystem(),
	}
	v := newVerifier(t, locator.NewInMemoryPrimary(), auditlog.NewInMemory(), secondaries)

	result := v.Verify(context.Background(), subject)

	assert.True(t, result.IsCompliant)
	assert.True(t, result.IsFullyErased)
	assert.InDelta(t, 100.0, result.OverallScore, 0.001)
	assert.Len(t, result.PerSystemResults, 4)
	assert.Empty(t, result.FailingSystems())
	assert.Equal(t, subject, result.SubjectID)
	assert.False(t, result.VerifiedAt.IsZero())
}

// A handful of cache stragglers stays within the cache's tolerance: the
// system passes its threshold but the result is not a full erasure.
func TestVerifySmallCacheResidualStaysCompliant(t *testing.T) {
	subject := id.SubjectID("subject-1")
	cache := systems.NewInMemoryCache()
	cache.Set("subject:subject-1:profile", "stale")
	cache.Set("subject:subject-1:prefs", "stale")
	v := newVerifier(t, locator.NewInMemoryPrimary(), auditlog.NewInMemory(), []systems.SecondarySystem{cache})

	result := v.Verify(context.Background(), subject)

	check := result.PerSystemResults[models.SystemCache]
	assert.True(t, check.Passed)
	assert.Equal(t, 2, check.ResidualCount)
	assert.True(t, result.IsCompliant)
	assert.False(t, result.IsFullyErased)
}

// Payment admits zero residue: a single surviving identity fails the whole
// verification even though every other system is clean.
func TestVerifyPaymentResidualFailsCompliance(t *testing.T) {
	subject := id.SubjectID("subject-1")
	api := systems.NewInMemoryPaymentAPI()
	api.AddCustomer("cus_stale")
	directory := systems.NewStaticCustomerDirectory()
	directory.Link(subject, "cus_stale")
	payment := systems.NewPaymentSystem(api, directory)

	v := newVerifier(t, locator.NewInMemoryPrimary(), auditlog.NewInMemory(), []systems.SecondarySystem{payment})

	result := v.Verify(context.Background(), subject)

	check := result.PerSystemResults[models.SystemPayment]
	assert.False(t, check.Passed)
	assert.Equal(t, 1, check.ResidualCount)
	assert.False(t, result.IsCompliant)

	failing := result.FailingSystems()
	require.Len(t, failing, 1)
	assert.Equal(t, models.SystemPayment, failing[0].SystemName)
}

// Raw audit entries are primary-store residue: the primary check fails
// until the request's trail is anonymized, then passes.
func TestVerifyCountsRawAuditRefsAsPrimaryResidue(t *testing.T) {
	subject := id.SubjectID("subject-1")
	requestID := id.NewRequestID()
	audit := auditlog.NewInMemory()
	ledger := auditlog.New(audit)
	ledger.RecordStep(context.Background(), requestID, subject,
		models.AuditOpHardDelete, models.SystemPrimaryStore, "sessions", models.Success(2))

	v := newVerifier(t, locator.NewInMemoryPrimary(), audit, nil)

	result := v.Verify(context.Background(), subject)
	check := result.PerSystemResults[models.SystemPrimaryStore]
	assert.False(t, check.Passed)
	assert.Equal(t, 1, check.ResidualCount)
	assert.False(t, result.IsCompliant)

	_, err := ledger.AnonymizeRequestEntries(context.Background(), requestID, subject)
	require.NoError(t, err)

	result = v.Verify(context.Background(), subject)
	assert.True(t, result.PerSystemResults[models.SystemPrimaryStore].Passed)
	assert.True(t, result.IsCompliant)
}

// An unreachable system cannot be attested clean. The check fails but the
// result is still well formed for every other system.
func TestVerifyBrokenSystemFailsItsCheckOnly(t *testing.T) {
	subject := id.SubjectID("subject-1")
	secondaries := []systems.SecondarySystem{
		&brokenSystem{systemType: models.SystemBackups},
		systems.NewInMemoryCache(),
	}
	v := newVerifier(t, locator.NewInMemoryPrimary(), auditlog.NewInMemory(), secondaries)

	result := v.Verify(context.Background(), subject)

	broken := result.PerSystemResults[models.SystemBackups]
	assert.False(t, broken.Passed)
	assert.Contains(t, broken.Details, "check failed")
	assert.True(t, result.PerSystemResults[models.SystemCache].Passed)
	assert.False(t, result.IsCompliant)
	assert.InDelta(t, float64(200)/3, result.OverallScore, 0.001)
}

func TestSystemScore(t *testing.T) {
	assert.Equal(t, 100.0, systemScore(0))
	assert.Equal(t, 97.0, systemScore(3))
	assert.Equal(t, 0.0, systemScore(250))
}
