package handler

import (
	"time"

	"lethe/internal/erasure/models"
)

// requestResponse is the wire shape of a deletion request.
type requestResponse struct {
	ID              string     `json:"id"`
	SubjectID       string     `json:"subject_id"`
	Status          string     `json:"status"`
	InitiatedByUser bool       `json:"initiated_by_user"`
	AdminActorID    string     `json:"admin_actor_id,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Priority        string     `json:"priority"`
	RequestedAt     time.Time  `json:"requested_at"`
	Deadline        time.Time  `json:"deadline"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CertificateID   string     `json:"certificate_id,omitempty"`
	LastError       string     `json:"last_error,omitempty"`
	Attempts        int        `json:"attempts"`
}

func toRequestResponse(request *models.DeletionRequest) requestResponse {
	resp := requestResponse{
		ID:              request.ID.String(),
		SubjectID:       request.SubjectID.String(),
		Status:          string(request.Status),
		InitiatedByUser: request.InitiatedByUser,
		Reason:          request.Reason,
		Priority:        string(request.Priority),
		RequestedAt:     request.RequestedAt,
		Deadline:        request.Deadline,
		ScheduledAt:     request.ScheduledAt,
		CompletedAt:     request.CompletedAt,
		LastError:       request.LastError,
		Attempts:        request.Attempts,
	}
	if request.AdminActorID != nil {
		resp.AdminActorID = request.AdminActorID.String()
	}
	if request.CertificateID != nil {
		resp.CertificateID = request.CertificateID.String()
	}
	return resp
}

func toRequestResponses(requests []*models.DeletionRequest) []requestResponse {
	out := make([]requestResponse, 0, len(requests))
	for _, request := range requests {
		out = append(out, toRequestResponse(request))
	}
	return out
}

// certificateResponse is the wire shape of a deletion certificate.
type certificateResponse struct {
	ID                 string                    `json:"id"`
	RequestID          string                    `json:"request_id"`
	SubjectID          string                    `json:"subject_id"`
	IsCompleteDeletion bool                      `json:"is_complete_deletion"`
	ComplianceAttested bool                      `json:"compliance_attested"`
	IssuedAt           time.Time                 `json:"issued_at"`
	Issuer             string                    `json:"issuer"`
	BodyText           string                    `json:"body_text"`
	Verification       models.VerificationResult `json:"verification"`
	Signature          string                    `json:"signature"`
}

func toCertificateResponse(cert *models.DeletionCertificate) certificateResponse {
	return certificateResponse{
		ID:                 cert.ID.String(),
		RequestID:          cert.RequestID.String(),
		SubjectID:          cert.SubjectID.String(),
		IsCompleteDeletion: cert.IsCompleteDeletion,
		ComplianceAttested: cert.ComplianceAttested,
		IssuedAt:           cert.IssuedAt,
		Issuer:             cert.Issuer,
		BodyText:           cert.BodyText,
		Verification:       cert.VerificationSnapshot,
		Signature:          cert.Signature,
	}
}

// auditEntryResponse is the wire shape of one audit trail entry.
type auditEntryResponse struct {
	RequestID       string    `json:"request_id"`
	SubjectRef      string    `json:"subject_ref"`
	Anonymized      bool      `json:"anonymized"`
	Operation       string    `json:"operation"`
	SystemType      string    `json:"system_type"`
	TableOrResource string    `json:"table_or_resource,omitempty"`
	RecordsAffected int       `json:"records_affected"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	IntegrityHash   string    `json:"integrity_hash"`
}

func toAuditEntryResponses(entries []*models.AuditLogEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditEntryResponse{
			RequestID:       entry.RequestID.String(),
			SubjectRef:      entry.SubjectRef,
			Anonymized:      entry.Anonymized,
			Operation:       entry.Operation,
			SystemType:      string(entry.SystemType),
			TableOrResource: entry.TableOrResource,
			RecordsAffected: entry.RecordsAffected,
			Success:         entry.Success,
			ErrorMessage:    entry.ErrorMessage,
			Timestamp:       entry.Timestamp,
			IntegrityHash:   entry.IntegrityHash,
		})
	}
	return out
}
