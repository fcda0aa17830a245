package auditlog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// PostgresStore persists audit entries in PostgreSQL. No row is ever
// deleted; the anonymization rewrite is the only UPDATE path and is scoped
// to a single request's rows.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	query := `
		INSERT INTO audit_log_entries (
			request_id, subject_ref, anonymized, operation, system_type,
			table_or_resource, records_affected, success, error_message,
			created_at, integrity_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		uuid.UUID(entry.RequestID),
		entry.SubjectRef,
		entry.Anonymized,
		entry.Operation,
		string(entry.SystemType),
		entry.TableOrResource,
		entry.RecordsAffected,
		entry.Success,
		entry.ErrorMessage,
		entry.Timestamp,
		entry.IntegrityHash,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRequest(ctx context.Context, requestID id.RequestID) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, request_id, subject_ref, anonymized, operation, system_type,
		       table_or_resource, records_affected, success, error_message,
		       created_at, integrity_hash
		FROM audit_log_entries
		WHERE request_id = $1
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		var reqID uuid.UUID
		var systemType string
		if err := rows.Scan(
			&entry.ID,
			&reqID,
			&entry.SubjectRef,
			&entry.Anonymized,
			&entry.Operation,
			&systemType,
			&entry.TableOrResource,
			&entry.RecordsAffected,
			&entry.Success,
			&entry.ErrorMessage,
			&entry.Timestamp,
			&entry.IntegrityHash,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.RequestID = id.RequestID(reqID)
		entry.SystemType = models.SystemType(systemType)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) CountRawRefs(ctx context.Context, subjectID id.SubjectID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_log_entries WHERE anonymized = FALSE AND subject_ref = $1`,
		string(subjectID),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raw subject refs: %w", err)
	}
	return count, nil
}

// AnonymizeByRequest rewrites each of the request's rows in one
// transaction, recomputing the integrity hash per row. The rewrite only
// touches rows of the just-completed request, so concurrent requests never
// contend on it.
func (s *PostgresStore) AnonymizeByRequest(ctx context.Context, requestID id.RequestID, anonymizedRef string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin anonymize tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := `
		SELECT id, request_id, subject_ref, anonymized, operation, system_type,
		       table_or_resource, records_affected, success, error_message,
		       created_at, integrity_hash
		FROM audit_log_entries
		WHERE request_id = $1 AND anonymized = FALSE
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return 0, fmt.Errorf("select entries for anonymization: %w", err)
	}

	var pending []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		var reqID uuid.UUID
		var systemType string
		if err := rows.Scan(
			&entry.ID,
			&reqID,
			&entry.SubjectRef,
			&entry.Anonymized,
			&entry.Operation,
			&systemType,
			&entry.TableOrResource,
			&entry.RecordsAffected,
			&entry.Success,
			&entry.ErrorMessage,
			&entry.Timestamp,
			&entry.IntegrityHash,
		); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan entry for anonymization: %w", err)
		}
		entry.RequestID = id.RequestID(reqID)
		entry.SystemType = models.SystemType(systemType)
		pending = append(pending, &entry)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("iterate entries for anonymization: %w", err)
	}
	rows.Close()

	for _, entry := range pending {
		entry.SubjectRef = anonymizedRef
		entry.Anonymized = true
		entry.IntegrityHash = entry.ComputeIntegrityHash()
		_, err := tx.ExecContext(ctx,
			`UPDATE audit_log_entries SET subject_ref = $2, anonymized = TRUE, integrity_hash = $3 WHERE id = $1`,
			entry.ID, entry.SubjectRef, entry.IntegrityHash,
		)
		if err != nil {
			return 0, fmt.Errorf("anonymize audit entry %d: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit anonymize tx: %w", err)
	}
	return len(pending), nil
}

func (s *PostgresStore) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return count, nil
}
