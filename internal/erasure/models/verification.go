package models

import (
	"time"

	id "lethe/pkg/domain"
)

// SystemVerification is the result of one independent read-only existence
// check against a single system.
type SystemVerification struct {
	SystemName    SystemType `json:"system_name"`
	Passed        bool       `json:"passed"`
	ResidualCount int        `json:"residual_count"`
	Details       string     `json:"details"`
}

// VerificationResult is produced fresh on every verification run. It is
// never persisted as a mutable entity; the only durable copy is the
// immutable snapshot embedded in a certificate.
type VerificationResult struct {
	SubjectID        id.SubjectID                      `json:"subject_id"`
	PerSystemResults map[SystemType]SystemVerification `json:"per_system_results"`
	// OverallScore is the percentage of systems that individually passed.
	// It is diagnostic only: compliance is decided per-system.
	OverallScore  float64   `json:"overall_score"`
	IsFullyErased bool      `json:"is_fully_erased"`
	IsCompliant   bool      `json:"is_compliant"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// FailingSystems lists the systems that did not meet their own threshold,
// in canonical system order.
func (v *VerificationResult) FailingSystems() []SystemVerification {
	var failing []SystemVerification
	for _, sys := range AllSystems() {
		if check, ok := v.PerSystemResults[sys]; ok && !check.Passed {
			failing = append(failing, check)
		}
	}
	return failing
}
