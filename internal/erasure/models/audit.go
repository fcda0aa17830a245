package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	id "lethe/pkg/domain"
)

// Audit operations recorded during execution of a request.
const (
	AuditOpHardDelete       = "hard_delete"
	AuditOpAnonymizeInPlace = "anonymize_in_place"
	AuditOpCachePurge       = "cache_purge"
	AuditOpLogRedaction     = "log_redaction"
	AuditOpBackupRewrite    = "backup_rewrite"
	AuditOpExternalDelete   = "external_identity_delete"
	AuditOpRequestClaimed   = "request_claimed"
	AuditOpRequestCompleted = "request_completed"
	AuditOpRequestFailed    = "request_failed"
)

// AuditLogEntry is one append-only record of a system-level operation
// attempted during execution of a deletion request. Failures are logged
// exactly like successes. Entries are never deleted; the only permitted
// rewrite replaces the raw subject reference with its anonymized form once
// the owning request reaches a terminal state.
type AuditLogEntry struct {
	ID        int64
	RequestID id.RequestID
	// SubjectRef holds the raw subject id until the owning request
	// completes, then only the anonymized reference.
	SubjectRef      string
	Anonymized      bool
	Operation       string
	SystemType      SystemType
	TableOrResource string
	RecordsAffected int
	Success         bool
	ErrorMessage    string
	Timestamp       time.Time
	// IntegrityHash covers every field above so post-hoc tampering with a
	// stored entry is detectable.
	IntegrityHash string
}

// ComputeIntegrityHash derives the tamper-evidence hash from the entry's
// recorded fields. Stores call this on append and after the terminal
// anonymization rewrite.
func (e *AuditLogEntry) ComputeIntegrityHash() string {
	payload := fmt.Sprintf("%s|%s|%t|%s|%s|%s|%d|%t|%s|%s",
		e.RequestID,
		e.SubjectRef,
		e.Anonymized,
		e.Operation,
		e.SystemType,
		e.TableOrResource,
		e.RecordsAffected,
		e.Success,
		e.ErrorMessage,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the integrity hash and compares it to the stored one.
func (e *AuditLogEntry) Verify() bool {
	return e.IntegrityHash == e.ComputeIntegrityHash()
}

// AnonymizeSubjectRef derives the stable pseudonym that replaces the raw
// subject id in audit entries once erasure completes. The digest is one-way:
// the original identifier cannot be recovered, but entries for the same
// subject remain correlatable for statistical integrity.
func AnonymizeSubjectRef(subjectID id.SubjectID) string {
	sum := sha256.Sum256([]byte(subjectID))
	return "anon:" + hex.EncodeToString(sum[:8])
}
