package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
)

const uniqueViolation = "23505"

// PostgresStore persists deletion requests in PostgreSQL. The
// one-active-request-per-subject invariant is enforced by a partial unique
// index over (subject_id) WHERE status IN ('pending','in_progress'); the
// conditional Transition is a single status-guarded UPDATE whose affected
// row count is the compare-and-swap result.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed request store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const requestColumns = `
	id, subject_id, status, initiated_by_user, admin_actor_id, reason,
	priority, requested_at, deadline, scheduled_at, completed_at,
	certificate_id, last_error, attempts, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, request *models.DeletionRequest) error {
	if request == nil {
		return fmt.Errorf("deletion request is required")
	}
	query := `
		INSERT INTO deletion_requests (` + requestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	var adminActorID any
	if request.AdminActorID != nil {
		adminActorID = uuid.UUID(*request.AdminActorID)
	}
	var certificateID any
	if request.CertificateID != nil {
		certificateID = uuid.UUID(*request.CertificateID)
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(request.ID),
		string(request.SubjectID),
		string(request.Status),
		request.InitiatedByUser,
		adminActorID,
		request.Reason,
		string(request.Priority),
		request.RequestedAt,
		request.Deadline,
		request.ScheduledAt,
		request.CompletedAt,
		certificateID,
		nullableString(request.LastError),
		request.Attempts,
		request.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create deletion request: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.DeletionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM deletion_requests WHERE id = $1`
	request, err := scanRequest(s.db.QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find deletion request: %w", err)
	}
	return request, nil
}

func (s *PostgresStore) FindOverdue(ctx context.Context, now time.Time, limit int) ([]*models.DeletionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM deletion_requests
		WHERE status = 'pending' AND deadline <= $1
		ORDER BY deadline ASC
	`
	return s.queryRequests(ctx, withLimit(query, limit), now)
}

func (s *PostgresStore) FindStaleInProgress(ctx context.Context, cutoff time.Time, limit int) ([]*models.DeletionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM deletion_requests
		WHERE status = 'in_progress' AND updated_at < $1
		ORDER BY deadline ASC
	`
	return s.queryRequests(ctx, withLimit(query, limit), cutoff)
}

func (s *PostgresStore) FindRetryable(ctx context.Context, maxAttempts int, limit int) ([]*models.DeletionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM deletion_requests
		WHERE status = 'failed' AND attempts < $1
		ORDER BY deadline ASC
	`
	return s.queryRequests(ctx, withLimit(query, limit), maxAttempts)
}

func (s *PostgresStore) List(ctx context.Context, filter *models.RequestFilter, now time.Time) ([]*models.DeletionRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM deletion_requests WHERE 1=1`
	var args []any
	if filter != nil {
		if filter.Status != nil {
			args = append(args, string(*filter.Status))
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if filter.Priority != nil {
			args = append(args, string(*filter.Priority))
			query += fmt.Sprintf(" AND priority = $%d", len(args))
		}
		if filter.OverdueOnly {
			args = append(args, now)
			query += fmt.Sprintf(" AND status = 'pending' AND deadline <= $%d", len(args))
		}
	}
	query += " ORDER BY requested_at DESC"
	return s.queryRequests(ctx, query, args...)
}

func (s *PostgresStore) ListRequestedBetween(ctx context.Context, start, end time.Time) ([]*models.DeletionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM deletion_requests
		WHERE requested_at >= $1 AND requested_at < $2
		ORDER BY deadline ASC
	`
	return s.queryRequests(ctx, query, start, end)
}

// Transition is the engine's concurrency primitive: a single UPDATE guarded
// by the expected status. Zero affected rows means another runner moved the
// request first (or it does not exist); the two cases are disambiguated
// with a follow-up existence check.
func (s *PostgresStore) Transition(ctx context.Context, requestID id.RequestID, expected, next models.Status, update TransitionUpdate) error {
	if !expected.CanTransitionTo(next) {
		return sentinel.ErrInvalidState
	}
	query := `
		UPDATE deletion_requests
		SET status = $3,
		    updated_at = NOW(),
		    scheduled_at = COALESCE($4, scheduled_at),
		    completed_at = COALESCE($5, completed_at),
		    certificate_id = COALESCE($6, certificate_id),
		    last_error = COALESCE($7, last_error),
		    attempts = attempts + $8
		WHERE id = $1 AND status = $2
	`
	attemptDelta := 0
	if update.IncrementAttempts {
		attemptDelta = 1
	}
	var certificateID any
	if update.CertificateID != nil {
		certificateID = uuid.UUID(*update.CertificateID)
	}
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(requestID),
		string(expected),
		string(next),
		update.ScheduledAt,
		update.CompletedAt,
		certificateID,
		update.LastError,
		attemptDelta,
	)
	if err != nil {
		return fmt.Errorf("transition deletion request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		if _, findErr := s.FindByID(ctx, requestID); findErr != nil {
			return findErr
		}
		return sentinel.ErrStale
	}
	return nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM deletion_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[models.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

func (s *PostgresStore) CountOverdue(ctx context.Context, now time.Time) (int, error) {
	return s.countWhere(ctx, `status = 'pending' AND deadline <= $1`, now)
}

func (s *PostgresStore) CountApproachingDeadline(ctx context.Context, now time.Time, lead time.Duration) (int, error) {
	return s.countWhere(ctx, `status = 'pending' AND deadline > $1 AND deadline <= $2`, now, now.Add(lead))
}

func (s *PostgresStore) countWhere(ctx context.Context, where string, args ...any) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM deletion_requests WHERE `+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count deletion requests: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) queryRequests(ctx context.Context, query string, args ...any) ([]*models.DeletionRequest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deletion requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.DeletionRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deletion request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deletion requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.DeletionRequest, error) {
	var (
		request       models.DeletionRequest
		requestID     uuid.UUID
		subjectID     string
		status        string
		priority      string
		adminActorID  uuid.NullUUID
		certificateID uuid.NullUUID
		lastError     sql.NullString
	)
	err := row.Scan(
		&requestID,
		&subjectID,
		&status,
		&request.InitiatedByUser,
		&adminActorID,
		&request.Reason,
		&priority,
		&request.RequestedAt,
		&request.Deadline,
		&request.ScheduledAt,
		&request.CompletedAt,
		&certificateID,
		&lastError,
		&request.Attempts,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	request.ID = id.RequestID(requestID)
	request.SubjectID = id.SubjectID(subjectID)
	request.Status = models.Status(status)
	request.Priority = models.Priority(priority)
	if adminActorID.Valid {
		actorID := id.ActorID(adminActorID.UUID)
		request.AdminActorID = &actorID
	}
	if certificateID.Valid {
		certID := id.CertificateID(certificateID.UUID)
		request.CertificateID = &certID
	}
	if lastError.Valid {
		request.LastError = lastError.String
	}
	return &request, nil
}

func withLimit(query string, limit int) string {
	if limit > 0 {
		return fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return query
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
