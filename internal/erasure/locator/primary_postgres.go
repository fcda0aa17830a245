package locator

import (
	"context"
	"database/sql"
	"fmt"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// allowedTables guards against interpolating an unexpected table name into
// SQL. Only tables of the fixed deletion plan are reachable.
var allowedTables = func() map[string]bool {
	tables := make(map[string]bool)
	for _, resource := range DefaultPlan() {
		tables[resource.Table] = true
	}
	return tables
}()

// PostgresPrimaryStore runs the locator capability set against the
// platform's primary PostgreSQL database. Every planned table carries a
// subject_id column and an anonymized flag; the subjects table itself is
// keyed by id.
type PostgresPrimaryStore struct {
	db *sql.DB
}

// NewPostgresPrimary constructs a PostgreSQL-backed primary store adapter.
func NewPostgresPrimary(db *sql.DB) *PostgresPrimaryStore {
	return &PostgresPrimaryStore{db: db}
}

func (s *PostgresPrimaryStore) subjectColumn(table string) string {
	if table == "subjects" {
		return "id"
	}
	return "subject_id"
}

func (s *PostgresPrimaryStore) checkTable(table string) error {
	if !allowedTables[table] {
		return fmt.Errorf("table %q is not part of the deletion plan", table)
	}
	return nil
}

func (s *PostgresPrimaryStore) CountBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s = $1 AND anonymized = FALSE`,
		table, s.subjectColumn(table),
	)
	var count int
	if err := s.db.QueryRowContext(ctx, query, string(subjectID)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s rows: %w", table, err)
	}
	return count, nil
}

func (s *PostgresPrimaryStore) DeleteBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, table, s.subjectColumn(table))
	result, err := s.db.ExecContext(ctx, query, string(subjectID))
	if err != nil {
		return 0, fmt.Errorf("delete %s rows: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete %s rows affected: %w", table, err)
	}
	return int(affected), nil
}

// AnonymizeBySubject replaces the subject reference with its stable
// pseudonym and scrubs the PII payload, retaining the row for audit and
// statistical integrity.
func (s *PostgresPrimaryStore) AnonymizeBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error) {
	if err := s.checkTable(table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET %s = $2, pii = NULL, anonymized = TRUE WHERE %s = $1 AND anonymized = FALSE`,
		table, s.subjectColumn(table), s.subjectColumn(table),
	)
	result, err := s.db.ExecContext(ctx, query, string(subjectID), models.AnonymizeSubjectRef(subjectID))
	if err != nil {
		return 0, fmt.Errorf("anonymize %s rows: %w", table, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("anonymize %s rows affected: %w", table, err)
	}
	return int(affected), nil
}
