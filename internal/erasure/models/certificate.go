package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	id "lethe/pkg/domain"
)

// DeletionCertificate is the immutable, hash-bound attestation that a
// request was (or was not) fully and compliantly erased. Once issued it is
// never mutated and never re-issued for the same request.
type DeletionCertificate struct {
	ID                   id.CertificateID
	RequestID            id.RequestID
	SubjectID            id.SubjectID
	IsCompleteDeletion   bool
	ComplianceAttested   bool
	IssuedAt             time.Time
	Issuer               string
	BodyText             string
	VerificationSnapshot VerificationResult
	// Signature binds certificateId, subjectId, verifiedAt and overallScore
	// so the attestation cannot be re-pointed at a different verification.
	Signature string
}

// ComputeSignature derives the binding hash for the certificate.
func ComputeSignature(certID id.CertificateID, subjectID id.SubjectID, verifiedAt time.Time, overallScore float64) string {
	payload := fmt.Sprintf("%s|%s|%s|%.4f",
		certID,
		subjectID,
		verifiedAt.UTC().Format(time.RFC3339Nano),
		overallScore,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifySignature recomputes the binding hash against the embedded snapshot.
func (c *DeletionCertificate) VerifySignature() bool {
	return c.Signature == ComputeSignature(
		c.ID, c.SubjectID, c.VerificationSnapshot.VerifiedAt, c.VerificationSnapshot.OverallScore,
	)
}
