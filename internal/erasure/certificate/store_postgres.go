package certificate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
)

const uniqueViolation = "23505"

// PostgresStore persists certificates in PostgreSQL. The verification
// snapshot is stored as JSONB alongside the structured columns; the unique
// constraint on request_id enforces the one-certificate-per-request rule at
// the database level.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed certificate store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const certificateColumns = `
	id, request_id, subject_id, is_complete_deletion, compliance_attested,
	issued_at, issuer, body_text, verification_snapshot, signature
`

func (s *PostgresStore) Create(ctx context.Context, cert *models.DeletionCertificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is required")
	}
	snapshot, err := json.Marshal(cert.VerificationSnapshot)
	if err != nil {
		return fmt.Errorf("marshal verification snapshot: %w", err)
	}
	query := `
		INSERT INTO deletion_certificates (` + certificateColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(cert.ID),
		uuid.UUID(cert.RequestID),
		string(cert.SubjectID),
		cert.IsCompleteDeletion,
		cert.ComplianceAttested,
		cert.IssuedAt,
		cert.Issuer,
		cert.BodyText,
		snapshot,
		cert.Signature,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, certID id.CertificateID) (*models.DeletionCertificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM deletion_certificates WHERE id = $1`
	return s.findOne(ctx, query, uuid.UUID(certID))
}

func (s *PostgresStore) FindByRequest(ctx context.Context, requestID id.RequestID) (*models.DeletionCertificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM deletion_certificates WHERE request_id = $1`
	return s.findOne(ctx, query, uuid.UUID(requestID))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.DeletionCertificate, error) {
	var (
		cert      models.DeletionCertificate
		certID    uuid.UUID
		requestID uuid.UUID
		subjectID string
		snapshot  []byte
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&certID,
		&requestID,
		&subjectID,
		&cert.IsCompleteDeletion,
		&cert.ComplianceAttested,
		&cert.IssuedAt,
		&cert.Issuer,
		&cert.BodyText,
		&snapshot,
		&cert.Signature,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find certificate: %w", err)
	}
	cert.ID = id.CertificateID(certID)
	cert.RequestID = id.RequestID(requestID)
	cert.SubjectID = id.SubjectID(subjectID)
	if err := json.Unmarshal(snapshot, &cert.VerificationSnapshot); err != nil {
		return nil, fmt.Errorf("unmarshal verification snapshot: %w", err)
	}
	return &cert, nil
}
