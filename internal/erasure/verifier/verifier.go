// Package verifier independently proves (or disproves) that a subject's
// data is gone. It re-queries every system directly and never trusts the
// orchestrator's self-reported success.
package verifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/locator"
	"lethe/internal/erasure/metrics"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/systems"
	id "lethe/pkg/domain"
)

// Verifier runs read-only existence checks per system and scores them.
type Verifier struct {
	locator     *locator.Locator
	ledger      *auditlog.Ledger
	secondaries []systems.SecondarySystem
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// New constructs a Verifier over the same system set the orchestrator uses.
func New(loc *locator.Locator, ledger *auditlog.Ledger, secondaries []systems.SecondarySystem, opts ...Option) (*Verifier, error) {
	if loc == nil || ledger == nil {
		return nil, fmt.Errorf("locator and ledger are required")
	}
	v := &Verifier{
		locator:     loc,
		ledger:      ledger,
		secondaries: secondaries,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// Verify produces a fresh VerificationResult. It is a total function: any
// combination of system states and check errors yields a well-formed
// result, never an error. A check that cannot be executed fails its system.
func (v *Verifier) Verify(ctx context.Context, subjectID id.SubjectID) *models.VerificationResult {
	result := &models.VerificationResult{
		SubjectID:        subjectID,
		PerSystemResults: make(map[models.SystemType]models.SystemVerification),
		VerifiedAt:       time.Now(),
	}

	result.PerSystemResults[models.SystemPrimaryStore] = v.checkPrimary(ctx, subjectID)
	for _, system := range v.secondaries {
		result.PerSystemResults[system.Type()] = v.checkSecondary(ctx, subjectID, system)
	}

	passed := 0
	fullyErased := true
	compliant := true
	for _, check := range result.PerSystemResults {
		if check.Passed {
			passed++
		} else {
			compliant = false
		}
		if check.ResidualCount != 0 {
			fullyErased = false
		}
	}
	if len(result.PerSystemResults) > 0 {
		result.OverallScore = 100 * float64(passed) / float64(len(result.PerSystemResults))
	}
	result.IsFullyErased = fullyErased
	// Compliance is decided per-system: one 100%-required system failing
	// makes the whole result non-compliant regardless of the aggregate.
	result.IsCompliant = compliant

	if v.metrics != nil {
		v.metrics.VerificationScore.Observe(result.OverallScore)
	}
	v.logger.InfoContext(ctx, "verification completed",
		"subject_id", subjectID,
		"overall_score", result.OverallScore,
		"compliant", result.IsCompliant,
	)
	return result
}

// checkPrimary counts raw references across every planned table plus the
// audit ledger's not-yet-anonymized entries. Anonymized rows count as zero.
func (v *Verifier) checkPrimary(ctx context.Context, subjectID id.SubjectID) models.SystemVerification {
	check := models.SystemVerification{SystemName: models.SystemPrimaryStore}

	tableResidue, err := v.locator.CountResidual(ctx, subjectID)
	if err != nil {
		check.Details = fmt.Sprintf("primary store check failed: %v", err)
		return check
	}
	auditResidue, err := v.ledger.CountRawRefs(ctx, subjectID)
	if err != nil {
		check.Details = fmt.Sprintf("audit ledger check failed: %v", err)
		return check
	}

	check.ResidualCount = tableResidue + auditResidue
	check.Passed = systemScore(check.ResidualCount) >= models.SystemPrimaryStore.ComplianceThreshold()
	if check.Passed {
		check.Details = "no raw subject references remain"
	} else {
		check.Details = fmt.Sprintf("%d raw references remain (%d table rows, %d audit entries)",
			check.ResidualCount, tableResidue, auditResidue)
	}
	return check
}

func (v *Verifier) checkSecondary(ctx context.Context, subjectID id.SubjectID, system systems.SecondarySystem) models.SystemVerification {
	check := models.SystemVerification{SystemName: system.Type()}

	residual, err := system.ResidualCount(ctx, subjectID)
	if err != nil {
		v.logger.WarnContext(ctx, "verification check failed",
			"subject_id", subjectID,
			"system", system.Type(),
			"error", err,
		)
		check.Details = fmt.Sprintf("check failed: %v", err)
		return check
	}

	check.ResidualCount = residual
	check.Passed = systemScore(residual) >= system.Type().ComplianceThreshold()
	if residual == 0 {
		check.Details = "no residual data"
	} else {
		check.Details = fmt.Sprintf("%d residual records", residual)
	}
	return check
}

// systemScore maps a residual count onto the 0-100 scale the per-system
// thresholds are expressed in: a clean system scores 100 and every residual
// record costs one point. Systems with a 100% threshold therefore admit no
// residue at all, while the looser thresholds tolerate the few stragglers
// expected from replica propagation and sampled log scans.
func systemScore(residual int) float64 {
	score := 100 - float64(residual)
	if score < 0 {
		return 0
	}
	return score
}
